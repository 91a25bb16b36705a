package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/psantana5/eventtimings/pkg/models"
)

// WriteRunList prints one line per stored run
func WriteRunList(w io.Writer, runs []*models.RunInfo) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "App", "Run", "Finished", "Ranks", "Duration[ms]", "Events")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.AppName,
			r.RunName,
			r.FinalizedAt.Local().Format(commentTimestampLayout),
			strconv.Itoa(r.Ranks),
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
			strconv.Itoa(r.EventCount),
		)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render run list: %w", err)
	}
	fmt.Fprintf(w, "\nTotal runs: %d\n", len(runs))
	return nil
}

// WriteRunTable prints a stored run: one row per event and rank, then the
// cross-rank statistics
func WriteRunTable(w io.Writer, run *models.Run) error {
	fmt.Fprintf(w, "Run %s (%s/%s) finished at %s\n", run.ID, run.AppName, run.RunName,
		run.FinalizedAt.Local().Format(time.ANSIC))
	fmt.Fprintf(w, "Global runtime       = %dms\n", run.Duration.Milliseconds())
	fmt.Fprintf(w, "Number of processors = %d\n\n", run.Ranks)

	stats := append([]*models.EventStatistic(nil), run.Events...)
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Name != stats[j].Name {
			return stats[i].Name < stats[j].Name
		}
		return stats[i].Rank < stats[j].Rank
	})

	table := tablewriter.NewWriter(w)
	table.Header("Event", "Rank", "Count", "Total[ms]", "Max[ms]", "Min[ms]", "Avg[ms]", "T[%]", "Data")
	for _, s := range stats {
		table.Append(
			s.Name,
			strconv.Itoa(s.Rank),
			strconv.FormatInt(s.Count, 10),
			strconv.FormatInt(s.TotalMs(), 10),
			strconv.FormatInt(s.MaxMs(), 10),
			strconv.FormatInt(s.MinMs(), 10),
			strconv.FormatInt(s.AvgMs(), 10),
			strconv.Itoa(s.TimePercentage(run.Duration)),
			formatData(s.Data),
		)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render run table: %w", err)
	}

	fmt.Fprintln(w)
	return WriteGlobalStats(w, run.GlobalStats())
}
