// Package report renders the statistics of a finalized registry: the console
// table, the CSV and event log files, a JSON or YAML summary, Prometheus
// gauges and the Chrome trace conversion of event logs.
package report

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/models"
)

const (
	rowTimestampLayout     = "2006-01-02T15:04:05.000"
	commentTimestampLayout = "2006-01-02 15:04:05"
)

// ErrNotCoordinator is returned by file writers called on a non-coordinator rank
var ErrNotCoordinator = errors.New("only the coordinator writes reports")

func checkFinalized(reg *events.Registry) error {
	if reg.State() != models.RegistryFinalized {
		return fmt.Errorf("%w: registry is %s", events.ErrNotFinalized, reg.State())
	}
	return nil
}

// statistics returns every per-rank statistic known to this rank: the global
// view on the coordinator, the local aggregator elsewhere
func statistics(reg *events.Registry) []*models.EventStatistic {
	var out []*models.EventStatistic
	if g := reg.Global(); g != nil {
		g.Each(func(_ string, stats []*models.EventStatistic) {
			out = append(out, stats...)
		})
		return out
	}
	reg.Local().Each(func(s *models.EventStatistic) {
		out = append(out, s)
	})
	return out
}

// formatData renders tags as [a,b,c]
func formatData(data []int64) string {
	parts := make([]string, len(data))
	for i, d := range data {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func formatRatio(r float64) string {
	return strconv.FormatFloat(r, 'f', 3, 64)
}

// appendFile opens path for appending and reports whether it was created
func appendFile(path string, write func(f *os.File, created bool) error) error {
	_, statErr := os.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	if err := write(f, created); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
