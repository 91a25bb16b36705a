package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/models"
)

// Summary is the machine-readable report of one finalized run
type Summary struct {
	RunID       string          `json:"run_id" yaml:"run_id"`
	AppName     string          `json:"app_name,omitempty" yaml:"app_name,omitempty"`
	RunName     string          `json:"run_name,omitempty" yaml:"run_name,omitempty"`
	Rank        int             `json:"rank" yaml:"rank"`
	Ranks       int             `json:"ranks" yaml:"ranks"`
	FinishedAt  time.Time       `json:"finished_at" yaml:"finished_at"`
	DurationMs  int64           `json:"duration_ms" yaml:"duration_ms"`
	Events      []EventSummary  `json:"events" yaml:"events"`
	GlobalStats []GlobalSummary `json:"global_stats,omitempty" yaml:"global_stats,omitempty"`
}

// EventSummary is one event on one rank, durations in milliseconds
type EventSummary struct {
	Name        string  `json:"name" yaml:"name"`
	Rank        int     `json:"rank" yaml:"rank"`
	Count       int64   `json:"count" yaml:"count"`
	TotalMs     int64   `json:"total_ms" yaml:"total_ms"`
	MinMs       int64   `json:"min_ms" yaml:"min_ms"`
	MaxMs       int64   `json:"max_ms" yaml:"max_ms"`
	AvgMs       int64   `json:"avg_ms" yaml:"avg_ms"`
	Percent     int     `json:"percent" yaml:"percent"`
	Data        []int64 `json:"data,omitempty" yaml:"data,omitempty"`
	Transitions int     `json:"transitions" yaml:"transitions"`
}

// GlobalSummary is the cross-rank extremes of one event
type GlobalSummary struct {
	Name    string  `json:"name" yaml:"name"`
	MaxMs   int64   `json:"max_ms" yaml:"max_ms"`
	MaxRank int     `json:"max_rank" yaml:"max_rank"`
	MinMs   int64   `json:"min_ms" yaml:"min_ms"`
	MinRank int     `json:"min_rank" yaml:"min_rank"`
	Ratio   float64 `json:"ratio" yaml:"ratio"`
}

// BuildSummary collects the summary of reg. The coordinator includes every
// rank, other ranks only their own events.
func BuildSummary(reg *events.Registry) (*Summary, error) {
	if err := checkFinalized(reg); err != nil {
		return nil, err
	}

	s := &Summary{
		RunID:      reg.RunID(),
		AppName:    reg.AppName(),
		RunName:    reg.RunName(),
		Rank:       reg.Rank(),
		Ranks:      reg.Size(),
		FinishedAt: reg.Timestamp(),
		DurationMs: reg.Duration().Milliseconds(),
		Events:     []EventSummary{},
	}
	for _, stat := range statistics(reg) {
		s.Events = append(s.Events, summarizeEvent(stat, reg.Duration()))
	}
	s.GlobalStats = summarizeGlobal(reg.GlobalStats())
	return s, nil
}

func summarizeEvent(stat *models.EventStatistic, global time.Duration) EventSummary {
	return EventSummary{
		Name:        stat.Name,
		Rank:        stat.Rank,
		Count:       stat.Count,
		TotalMs:     stat.TotalMs(),
		MinMs:       stat.MinMs(),
		MaxMs:       stat.MaxMs(),
		AvgMs:       stat.AvgMs(),
		Percent:     stat.TimePercentage(global),
		Data:        stat.Data,
		Transitions: len(stat.Transitions),
	}
}

func summarizeGlobal(stats map[string]models.GlobalEventStatistic) []GlobalSummary {
	if len(stats) == 0 {
		return nil
	}
	out := make([]GlobalSummary, 0, len(stats))
	for name, gs := range stats {
		out = append(out, GlobalSummary{
			Name:    name,
			MaxMs:   gs.MaxDuration.Milliseconds(),
			MaxRank: gs.MaxRank,
			MinMs:   gs.MinDuration.Milliseconds(),
			MinRank: gs.MinRank,
			Ratio:   gs.Ratio(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WriteSummary writes the summary of reg as "json" or "yaml"
func WriteSummary(w io.Writer, reg *events.Registry, format string) error {
	s, err := BuildSummary(reg)
	if err != nil {
		return err
	}
	return Encode(w, s, format)
}

// Encode writes v as indented JSON or as YAML
func Encode(w io.Writer, v interface{}, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported format %q (use json or yaml)", format)
	}
}
