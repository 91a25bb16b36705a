// Package events measures named time intervals on every rank of a run and
// collects the per-rank statistics at a coordinating rank when the run ends.
package events

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/psantana5/eventtimings/internal/observe"
	"github.com/psantana5/eventtimings/pkg/comm"
	"github.com/psantana5/eventtimings/pkg/logging"
	"github.com/psantana5/eventtimings/pkg/models"
)

var (
	// ErrNotFinalized is returned when global figures are requested before Finalize
	ErrNotFinalized = errors.New("registry not finalized")
	// ErrNotActive is returned by drivers that need an initialized registry
	ErrNotActive = errors.New("registry not active")
)

// Registry owns the event state of one rank: the aggregator, the prefix
// stack, the stored timers and the run-wide sentinel timer. One registry per
// rank per run, driven from a single goroutine.
type Registry struct {
	comm        comm.Communicator
	clock       clock.Clock
	logger      *logging.Logger
	coordinator int

	state   models.RegistryState
	appName string
	runName string
	runID   string

	epoch     *observe.Epoch
	timestamp time.Time
	duration  time.Duration
	sentinel  *Timer

	local       *Aggregator
	global      *GlobalEvents
	globalStats map[string]models.GlobalEventStatistic

	stored   map[string]*Timer
	prefixes []string
}

// Option configures a Registry
type Option func(*Registry)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithCoordinator selects the rank that collects all statistics. Default 0.
func WithCoordinator(rank int) Option {
	return func(r *Registry) { r.coordinator = rank }
}

// NewRegistry creates an uninitialized registry for the rank behind c
func NewRegistry(c comm.Communicator, opts ...Option) *Registry {
	r := &Registry{
		comm:   c,
		clock:  clock.New(),
		logger: logging.Nop(),
		state:  models.RegistryUninitialized,
		local:  NewAggregator(c.Rank()),
		stored: make(map[string]*Timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithField("rank", c.Rank())
	return r
}

// Initialize starts a measurement epoch. Every rank enters a barrier while
// the sentinel timer starts, so all ranks share the run-start instant.
func (r *Registry) Initialize(appName, runName string) error {
	if err := models.ValidateRegistryTransition(r.state, models.RegistryActive); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := checkRank(r.coordinator, r.comm.Size()); err != nil {
		return fmt.Errorf("initialize: coordinator: %w", err)
	}

	r.appName = appName
	r.runName = runName
	r.runID = uuid.NewString()
	r.global = nil
	r.globalStats = nil
	r.epoch = observe.NewEpoch(r.clock)

	sentinel, err := newTimer(r, models.GlobalEventName, SyncOnTransition())
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	r.sentinel = sentinel
	r.state = models.RegistryActive

	r.logger.Info("Event registry initialized", map[string]interface{}{
		"app":    appName,
		"run":    runName,
		"run_id": r.runID,
		"ranks":  r.comm.Size(),
	})
	return nil
}

// Finalize stops the sentinel timer behind a barrier, stops every stored
// timer and runs the collection once. The registry is finalized even when
// collection fails, the run's report is invalid in that case.
func (r *Registry) Finalize() error {
	if err := models.ValidateRegistryTransition(r.state, models.RegistryFinalized); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	if err := r.sentinel.Stop(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	r.duration = r.sentinel.Duration()
	r.epoch.Complete()
	r.timestamp = r.epoch.CompletedAt
	r.state = models.RegistryFinalized

	for _, name := range r.storedNames() {
		if err := r.stored[name].Stop(); err != nil {
			return fmt.Errorf("finalize: stored timer %s: %w", name, err)
		}
	}

	global, err := Collect(r.comm, r.local, r.coordinator)
	if err != nil {
		r.logger.Error("Event collection failed", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("finalize: %w", err)
	}

	if r.IsCoordinator() {
		r.global = global
		r.globalStats = global.Stats()
	}

	r.logger.Info("Event registry finalized", map[string]interface{}{
		"run_id":      r.runID,
		"duration_ms": r.duration.Milliseconds(),
		"events":      r.local.Len(),
	})
	return nil
}

// Clear drops all local statistics and stored timers. Global results of the
// last epoch are dropped too.
func (r *Registry) Clear() {
	r.local.Clear()
	r.stored = make(map[string]*Timer)
	r.global = nil
	r.globalStats = nil
}

// NewTimer creates a timer named by the current prefix plus name. The timer
// starts immediately unless Deferred is given.
func (r *Registry) NewTimer(name string, opts ...TimerOption) (*Timer, error) {
	return newTimer(r, r.Prefix()+name, opts...)
}

// AddEvent records one interval of known duration under the current prefix
func (r *Registry) AddEvent(name string, d time.Duration) {
	r.report(r.Prefix()+name, d, nil, nil)
}

// StoredTimer returns the registry-owned timer called name, creating it
// stopped on first use. Stored timers ignore the prefix stack and are
// stopped by Finalize.
func (r *Registry) StoredTimer(name string) *Timer {
	if t, ok := r.stored[name]; ok {
		return t
	}
	t := &Timer{name: name, reg: r}
	r.stored[name] = t
	return t
}

func (r *Registry) storedNames() []string {
	names := make([]string, 0, len(r.stored))
	for name := range r.stored {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) report(name string, d time.Duration, transitions []models.Transition, tags []int64) {
	r.local.Report(name, d, transitions, tags)
}

// State returns the lifecycle state
func (r *Registry) State() models.RegistryState { return r.state }

// Active reports whether the registry is between Initialize and Finalize
func (r *Registry) Active() bool { return r.state == models.RegistryActive }

// Rank returns this rank
func (r *Registry) Rank() int { return r.comm.Rank() }

// Size returns the number of ranks
func (r *Registry) Size() int { return r.comm.Size() }

// Coordinator returns the collecting rank
func (r *Registry) Coordinator() int { return r.coordinator }

// IsCoordinator reports whether this rank collects the statistics
func (r *Registry) IsCoordinator() bool { return r.comm.Rank() == r.coordinator }

// AppName returns the application name given to Initialize
func (r *Registry) AppName() string { return r.appName }

// RunName returns the run name given to Initialize
func (r *Registry) RunName() string { return r.runName }

// RunID is a random identifier of the current epoch
func (r *Registry) RunID() string { return r.runID }

// InitializedAt returns the wall-clock start of the current epoch
func (r *Registry) InitializedAt() time.Time {
	if r.epoch == nil {
		return time.Time{}
	}
	return r.epoch.StartedAt
}

// Timestamp returns the wall-clock time of the last Finalize
func (r *Registry) Timestamp() time.Time { return r.timestamp }

// Duration returns the sentinel duration of the last finalized epoch. It is
// the denominator of every time percentage and is zero before Finalize.
func (r *Registry) Duration() time.Duration { return r.duration }

// Local returns this rank's aggregator
func (r *Registry) Local() *Aggregator { return r.local }

// Global returns the collected statistics of every rank. Only the
// coordinator holds them, nil elsewhere and before Finalize.
func (r *Registry) Global() *GlobalEvents { return r.global }

// GlobalStats returns the cross-rank extremes per event, coordinator only
func (r *Registry) GlobalStats() map[string]models.GlobalEventStatistic {
	return r.globalStats
}

func checkRank(rank, size int) error {
	if rank < 0 || rank >= size {
		return fmt.Errorf("%w: %d (size %d)", comm.ErrInvalidRank, rank, size)
	}
	return nil
}
