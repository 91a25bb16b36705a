package events

import (
	"sort"
	"time"

	"github.com/psantana5/eventtimings/pkg/models"
)

// Aggregator holds the running statistic of every event reported on one rank.
// Each name maps to exactly one statistic for the lifetime of the aggregator.
type Aggregator struct {
	rank  int
	stats map[string]*models.EventStatistic
}

// NewAggregator creates an empty aggregator for rank
func NewAggregator(rank int) *Aggregator {
	return &Aggregator{
		rank:  rank,
		stats: make(map[string]*models.EventStatistic),
	}
}

// Report merges one completed interval of name
func (a *Aggregator) Report(name string, d time.Duration, transitions []models.Transition, tags []int64) {
	stat, ok := a.stats[name]
	if !ok {
		stat = models.NewEventStatistic(name, a.rank)
		a.stats[name] = stat
	}
	stat.Put(d, transitions, tags)
}

// Rank returns the rank the aggregator belongs to
func (a *Aggregator) Rank() int {
	return a.rank
}

// Len returns the number of distinct event names
func (a *Aggregator) Len() int {
	return len(a.stats)
}

// Get returns the statistic of name, or nil
func (a *Aggregator) Get(name string) *models.EventStatistic {
	return a.stats[name]
}

// Names returns every event name in lexical order
func (a *Aggregator) Names() []string {
	names := make([]string, 0, len(a.stats))
	for name := range a.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Each calls fn for every statistic in name order
func (a *Aggregator) Each(fn func(stat *models.EventStatistic)) {
	for _, name := range a.Names() {
		fn(a.stats[name])
	}
}

// Clear drops every statistic
func (a *Aggregator) Clear() {
	a.stats = make(map[string]*models.EventStatistic)
}
