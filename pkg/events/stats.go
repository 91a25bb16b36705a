package events

import (
	"sort"

	"github.com/psantana5/eventtimings/pkg/models"
)

// GlobalEvents is the coordinator's view after collection: every event name
// maps to one statistic per contributing rank, in rank order. Ranks are never
// merged into each other.
type GlobalEvents struct {
	size    int
	entries map[string][]*models.EventStatistic
}

func newGlobalEvents(size int) *GlobalEvents {
	return &GlobalEvents{
		size:    size,
		entries: make(map[string][]*models.EventStatistic),
	}
}

func (g *GlobalEvents) add(stat *models.EventStatistic) {
	g.entries[stat.Name] = append(g.entries[stat.Name], stat)
}

// Size returns the number of ranks of the run
func (g *GlobalEvents) Size() int {
	return g.size
}

// Len returns the number of distinct event names
func (g *GlobalEvents) Len() int {
	return len(g.entries)
}

// Names returns every event name in lexical order
func (g *GlobalEvents) Names() []string {
	names := make([]string, 0, len(g.entries))
	for name := range g.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the per-rank statistics of name in rank order
func (g *GlobalEvents) Get(name string) []*models.EventStatistic {
	return g.entries[name]
}

// Ranks returns the ranks that contributed at least one event
func (g *GlobalEvents) Ranks() []int {
	seen := make(map[int]bool)
	for _, stats := range g.entries {
		for _, s := range stats {
			seen[s.Rank] = true
		}
	}
	ranks := make([]int, 0, len(seen))
	for r := range seen {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	return ranks
}

// ForRank returns the statistics reported by rank, in name order
func (g *GlobalEvents) ForRank(rank int) []*models.EventStatistic {
	var out []*models.EventStatistic
	for _, name := range g.Names() {
		for _, s := range g.entries[name] {
			if s.Rank == rank {
				out = append(out, s)
			}
		}
	}
	return out
}

// Each calls fn for every name in lexical order
func (g *GlobalEvents) Each(fn func(name string, stats []*models.EventStatistic)) {
	for _, name := range g.Names() {
		fn(name, g.entries[name])
	}
}

// Stats derives the cross-rank extremes of every event
func (g *GlobalEvents) Stats() map[string]models.GlobalEventStatistic {
	var all []*models.EventStatistic
	g.Each(func(_ string, stats []*models.EventStatistic) {
		all = append(all, stats...)
	})
	return models.GlobalStatsOf(all)
}
