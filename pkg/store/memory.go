package store

import (
	"sort"
	"sync"

	"github.com/psantana5/eventtimings/pkg/models"
)

// MemoryStore keeps runs in memory, for tests and one-shot runs
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*models.Run)}
}

// SaveRun stores a copy of run
func (s *MemoryStore) SaveRun(run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return ErrRunExists
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun returns a copy of the run with id
func (s *MemoryStore) GetRun(id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns every run, most recently finalized first
func (s *MemoryStore) ListRuns() ([]*models.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]*models.RunInfo, 0, len(s.runs))
	for _, run := range s.runs {
		infos = append(infos, run.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].FinalizedAt.After(infos[j].FinalizedAt)
	})
	return infos, nil
}

// DeleteRun removes the run with id
func (s *MemoryStore) DeleteRun(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return ErrRunNotFound
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) Close() error       { return nil }
func (s *MemoryStore) HealthCheck() error { return nil }

func cloneRun(run *models.Run) *models.Run {
	c := *run
	c.Events = make([]*models.EventStatistic, len(run.Events))
	for i, e := range run.Events {
		c.Events[i] = e.Clone()
	}
	return &c
}

var _ Store = (*MemoryStore)(nil)
