package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/models"
)

var csvHeader = []string{"Timestamp", "RunName", "Rank", "Name", "Count", "Total", "Min", "Max", "Avg", "T%", "Data"}

// WriteCSV appends one row per event and rank to path. The column header is
// written only when the file is new. Coordinator only.
func WriteCSV(path string, reg *events.Registry) error {
	if !reg.IsCoordinator() {
		return ErrNotCoordinator
	}
	if err := checkFinalized(reg); err != nil {
		return err
	}
	return appendFile(path, func(f *os.File, created bool) error {
		return EncodeCSV(f, reg, created)
	})
}

// EncodeCSV writes the CSV block of one finalized run to w
func EncodeCSV(w io.Writer, reg *events.Registry, header bool) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	if header {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		cw.Flush()
	}

	finished := reg.Timestamp().Local()
	fmt.Fprintf(bw, "# Run finished at: %s\n", finished.Format(commentTimestampLayout))
	fmt.Fprintf(bw, "# Number of processors: %d\n", reg.Size())

	ts := finished.Format(rowTimestampLayout)
	for _, s := range statistics(reg) {
		if err := cw.Write(csvRow(ts, reg, s)); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

func csvRow(ts string, reg *events.Registry, s *models.EventStatistic) []string {
	return []string{
		ts,
		reg.RunName(),
		strconv.Itoa(s.Rank),
		s.Name,
		strconv.FormatInt(s.Count, 10),
		strconv.FormatInt(s.TotalMs(), 10),
		strconv.FormatInt(s.MinMs(), 10),
		strconv.FormatInt(s.MaxMs(), 10),
		strconv.FormatInt(s.AvgMs(), 10),
		strconv.Itoa(s.TimePercentage(reg.Duration())),
		formatData(s.Data),
	}
}
