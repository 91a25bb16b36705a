package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/hostinfo"
	"github.com/psantana5/eventtimings/pkg/models"
)

// WriteTable prints the run header and the local event table followed by
// the cross-rank statistics. Only the coordinator prints, other ranks write
// nothing. host may be nil.
func WriteTable(w io.Writer, reg *events.Registry, host *hostinfo.Info) error {
	if !reg.IsCoordinator() {
		return nil
	}
	if err := checkFinalized(reg); err != nil {
		return err
	}

	total := reg.Duration().Milliseconds()
	fmt.Fprintf(w, "Run finished at %s\n", reg.Timestamp().Local().Format(time.ANSIC))
	fmt.Fprintf(w, "Global runtime       = %dms / %ds\n", total, total/1000)
	fmt.Fprintf(w, "Number of processors = %d\n", reg.Size())
	fmt.Fprintf(w, "# Rank: %d\n", reg.Rank())
	if host != nil {
		fmt.Fprintf(w, "# Host: %s\n", host)
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.Header("Event", "Count", "Total[ms]", "Max[ms]", "Min[ms]", "Avg[ms]", "T[%]")
	reg.Local().Each(func(s *models.EventStatistic) {
		table.Append(
			s.Name,
			strconv.FormatInt(s.Count, 10),
			strconv.FormatInt(s.TotalMs(), 10),
			strconv.FormatInt(s.MaxMs(), 10),
			strconv.FormatInt(s.MinMs(), 10),
			strconv.FormatInt(s.AvgMs(), 10),
			strconv.Itoa(s.TimePercentage(reg.Duration())),
		)
	})
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render event table: %w", err)
	}

	fmt.Fprintln(w)
	return WriteGlobalStats(w, reg.GlobalStats())
}

// WriteGlobalStats prints the cross-rank extremes of every event
func WriteGlobalStats(w io.Writer, stats map[string]models.GlobalEventStatistic) error {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Max", "MaxOnRank", "Min", "MinOnRank", "Min/Max")
	for _, name := range names {
		gs := stats[name]
		table.Append(
			name,
			strconv.FormatInt(gs.MaxDuration.Milliseconds(), 10),
			strconv.Itoa(gs.MaxRank),
			strconv.FormatInt(gs.MinDuration.Milliseconds(), 10),
			strconv.Itoa(gs.MinRank),
			formatRatio(gs.Ratio()),
		)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render global statistics: %w", err)
	}
	return nil
}
