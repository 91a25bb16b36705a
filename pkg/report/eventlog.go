package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/psantana5/eventtimings/pkg/events"
)

var eventLogHeader = []string{"RunTimestamp", "RunName", "Name", "Rank", "Timestamp", "State"}

// WriteEventLog appends one row per recorded state transition to path. The
// column header is written only when the file is new. Coordinator only.
func WriteEventLog(path string, reg *events.Registry) error {
	if !reg.IsCoordinator() {
		return ErrNotCoordinator
	}
	if err := checkFinalized(reg); err != nil {
		return err
	}
	return appendFile(path, func(f *os.File, created bool) error {
		return EncodeEventLog(f, reg, created)
	})
}

// EncodeEventLog writes the transition rows of one finalized run to w.
// Timestamp is in milliseconds since the Unix epoch, State is the numeric
// timer state.
func EncodeEventLog(w io.Writer, reg *events.Registry, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(eventLogHeader); err != nil {
			return err
		}
	}

	runTS := reg.Timestamp().Local().Format(rowTimestampLayout)
	for _, s := range statistics(reg) {
		rank := strconv.Itoa(s.Rank)
		for _, tr := range s.Transitions {
			row := []string{
				runTS,
				reg.RunName(),
				s.Name,
				rank,
				strconv.FormatInt(tr.At.UnixMilli(), 10),
				strconv.Itoa(int(tr.State)),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
