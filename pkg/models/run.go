package models

import "time"

// Run is a finalized epoch as persisted: every per-rank statistic collected
// at the coordinator
type Run struct {
	ID          string            `json:"id" yaml:"id"`
	AppName     string            `json:"app_name" yaml:"app_name"`
	RunName     string            `json:"run_name" yaml:"run_name"`
	FinalizedAt time.Time         `json:"finalized_at" yaml:"finalized_at"`
	Ranks       int               `json:"ranks" yaml:"ranks"`
	Duration    time.Duration     `json:"duration" yaml:"duration"`
	Events      []*EventStatistic `json:"events" yaml:"events"`
}

// RunInfo is the listing entry of a stored run
type RunInfo struct {
	ID          string        `json:"id" yaml:"id"`
	AppName     string        `json:"app_name" yaml:"app_name"`
	RunName     string        `json:"run_name" yaml:"run_name"`
	FinalizedAt time.Time     `json:"finalized_at" yaml:"finalized_at"`
	Ranks       int           `json:"ranks" yaml:"ranks"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	EventCount  int           `json:"event_count" yaml:"event_count"`
}

// Info returns the listing entry of r
func (r *Run) Info() *RunInfo {
	names := make(map[string]bool)
	for _, e := range r.Events {
		names[e.Name] = true
	}
	return &RunInfo{
		ID:          r.ID,
		AppName:     r.AppName,
		RunName:     r.RunName,
		FinalizedAt: r.FinalizedAt,
		Ranks:       r.Ranks,
		Duration:    r.Duration,
		EventCount:  len(names),
	}
}

// GlobalStats derives the cross-rank statistics of the stored events
func (r *Run) GlobalStats() map[string]GlobalEventStatistic {
	return GlobalStatsOf(r.Events)
}
