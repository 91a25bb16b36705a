package models

import (
	"math"
	"time"
)

// GlobalEventName is the name of the run-wide sentinel event
const GlobalEventName = "_GLOBAL"

// Transition is one entry of a timer's state change log
type Transition struct {
	State TimerState `json:"state" yaml:"state"`
	At    time.Time  `json:"at" yaml:"at"`
}

// EventStatistic aggregates every reported interval of one event on one rank.
// Min starts at the largest representable duration and Max at the smallest,
// so the first report tightens both bounds.
type EventStatistic struct {
	Name        string        `json:"name" yaml:"name"`
	Rank        int           `json:"rank" yaml:"rank"`
	Count       int64         `json:"count" yaml:"count"`
	Total       time.Duration `json:"total" yaml:"total"`
	Min         time.Duration `json:"min" yaml:"min"`
	Max         time.Duration `json:"max" yaml:"max"`
	Data        []int64       `json:"data,omitempty" yaml:"data,omitempty"`
	Transitions []Transition  `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// NewEventStatistic creates an empty statistic for name on rank
func NewEventStatistic(name string, rank int) *EventStatistic {
	return &EventStatistic{
		Name: name,
		Rank: rank,
		Min:  time.Duration(math.MaxInt64),
		Max:  time.Duration(math.MinInt64),
	}
}

// Put merges one completed interval into the statistic
func (e *EventStatistic) Put(d time.Duration, transitions []Transition, tags []int64) {
	e.Count++
	e.Total += d
	if d < e.Min {
		e.Min = d
	}
	if d > e.Max {
		e.Max = d
	}
	e.Data = append(e.Data, tags...)
	e.Transitions = append(e.Transitions, transitions...)
}

// Avg returns the mean interval duration, zero if nothing was reported
func (e *EventStatistic) Avg() time.Duration {
	if e.Count == 0 {
		return 0
	}
	return e.Total / time.Duration(e.Count)
}

// TotalMs returns the total in whole milliseconds
func (e *EventStatistic) TotalMs() int64 { return e.Total.Milliseconds() }

// MinMs returns the minimum in whole milliseconds
func (e *EventStatistic) MinMs() int64 { return e.Min.Milliseconds() }

// MaxMs returns the maximum in whole milliseconds
func (e *EventStatistic) MaxMs() int64 { return e.Max.Milliseconds() }

// AvgMs returns the average in whole milliseconds
func (e *EventStatistic) AvgMs() int64 {
	if e.Count == 0 {
		return 0
	}
	return e.TotalMs() / e.Count
}

// TimePercentage returns 100 * total / global, truncated. Zero when global is zero.
func (e *EventStatistic) TimePercentage(global time.Duration) int {
	if global <= 0 {
		return 0
	}
	return int(float64(e.Total) / float64(global) * 100)
}

// Clone returns a deep copy
func (e *EventStatistic) Clone() *EventStatistic {
	c := *e
	c.Data = append([]int64(nil), e.Data...)
	c.Transitions = append([]Transition(nil), e.Transitions...)
	return &c
}

// GlobalEventStatistic holds the cross-rank extremes of one event
type GlobalEventStatistic struct {
	MaxDuration time.Duration `json:"max" yaml:"max"`
	MaxRank     int           `json:"max_rank" yaml:"max_rank"`
	MinDuration time.Duration `json:"min" yaml:"min"`
	MinRank     int           `json:"min_rank" yaml:"min_rank"`
}

// NewGlobalEventStatistic returns a statistic whose bounds any entry tightens
func NewGlobalEventStatistic() GlobalEventStatistic {
	return GlobalEventStatistic{
		MaxDuration: time.Duration(math.MinInt64),
		MinDuration: time.Duration(math.MaxInt64),
		MaxRank:     -1,
		MinRank:     -1,
	}
}

// Ratio returns the imbalance ratio min/max, defined as 0 when max is zero
func (g GlobalEventStatistic) Ratio() float64 {
	if g.MaxDuration == 0 {
		return 0
	}
	return float64(g.MinDuration) / float64(g.MaxDuration)
}

// GlobalStatsOf derives the cross-rank extremes per event name: the entry
// with the largest max and the entry with the smallest min. On ties the
// entry seen first wins.
func GlobalStatsOf(stats []*EventStatistic) map[string]GlobalEventStatistic {
	out := make(map[string]GlobalEventStatistic)
	for _, s := range stats {
		gs, ok := out[s.Name]
		if !ok {
			gs = NewGlobalEventStatistic()
		}
		if s.Max > gs.MaxDuration {
			gs.MaxDuration = s.Max
			gs.MaxRank = s.Rank
		}
		if s.Min < gs.MinDuration {
			gs.MinDuration = s.Min
			gs.MinRank = s.Rank
		}
		out[s.Name] = gs
	}
	return out
}
