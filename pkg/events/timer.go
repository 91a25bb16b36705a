package events

import (
	"fmt"
	"time"

	"github.com/psantana5/eventtimings/pkg/models"
)

// Timer measures one named interval. Running time accumulates across pauses;
// stopping reports the interval to the registry's aggregator and resets the
// timer so it can be started again under the same name.
//
// A Timer belongs to the goroutine driving its rank and is not safe for
// concurrent use.
type Timer struct {
	name string
	reg  *Registry
	sync bool

	state        models.TimerState
	accumulated  time.Duration
	last         time.Duration
	runningSince time.Time
	transitions  []models.Transition
	tags         []int64
}

// TimerOption configures a timer at construction
type TimerOption func(*timerConfig)

type timerConfig struct {
	autostart bool
	sync      bool
}

// Deferred leaves the timer stopped after construction
func Deferred() TimerOption {
	return func(c *timerConfig) { c.autostart = false }
}

// SyncOnTransition makes every start, pause and stop enter a barrier across
// all ranks before taking its timestamp
func SyncOnTransition() TimerOption {
	return func(c *timerConfig) { c.sync = true }
}

// TransitionOption configures a single start, pause or stop
type TransitionOption func(*transitionConfig)

type transitionConfig struct {
	barrier bool
}

// Barrier synchronizes all ranks before this transition takes its timestamp
func Barrier() TransitionOption {
	return func(c *transitionConfig) { c.barrier = true }
}

func newTimer(reg *Registry, name string, opts ...TimerOption) (*Timer, error) {
	cfg := timerConfig{autostart: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Timer{
		name: name,
		reg:  reg,
		sync: cfg.sync,
	}
	if cfg.autostart {
		if err := t.Start(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Name returns the fully qualified name
func (t *Timer) Name() string {
	return t.name
}

// State returns the current state
func (t *Timer) State() models.TimerState {
	return t.state
}

// Duration returns the running time accumulated in the open interval. Once
// stopped it returns the duration of the last reported interval.
func (t *Timer) Duration() time.Duration {
	if t.state == models.TimerStopped {
		return t.last
	}
	return t.accumulated
}

// Transitions returns a copy of the state changes of the open interval
func (t *Timer) Transitions() []models.Transition {
	return append([]models.Transition(nil), t.transitions...)
}

// Tags returns a copy of the tags attached to the open interval
func (t *Timer) Tags() []int64 {
	return append([]int64(nil), t.tags...)
}

// AddTags attaches numeric annotations to the open interval
func (t *Timer) AddTags(tags ...int64) {
	t.tags = append(t.tags, tags...)
}

// Start begins or resumes the interval. No-op while running.
func (t *Timer) Start(opts ...TransitionOption) error {
	if !models.CanTransitionTimer(t.state, models.TimerRunning) {
		return nil
	}

	now, err := t.enter(opts)
	if err != nil {
		return err
	}
	t.runningSince = now
	t.changeState(models.TimerRunning, now)
	return nil
}

// Pause suspends accumulation. No-op unless running.
func (t *Timer) Pause(opts ...TransitionOption) error {
	if !models.CanTransitionTimer(t.state, models.TimerPaused) {
		return nil
	}

	now, err := t.enter(opts)
	if err != nil {
		return err
	}
	t.accumulated += now.Sub(t.runningSince)
	t.changeState(models.TimerPaused, now)
	return nil
}

// Stop closes the interval and reports it. No-op when already stopped.
func (t *Timer) Stop(opts ...TransitionOption) error {
	if !models.CanTransitionTimer(t.state, models.TimerStopped) {
		return nil
	}

	now, err := t.enter(opts)
	if err != nil {
		return err
	}
	if t.state == models.TimerRunning {
		t.accumulated += now.Sub(t.runningSince)
	}
	t.changeState(models.TimerStopped, now)

	t.reg.report(t.name, t.accumulated, t.transitions, t.tags)

	t.last = t.accumulated
	t.accumulated = 0
	t.transitions = nil
	t.tags = nil
	return nil
}

// enter runs the optional barrier and returns the transition timestamp
func (t *Timer) enter(opts []TransitionOption) (time.Time, error) {
	var cfg transitionConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.barrier || t.sync {
		if err := t.reg.comm.Barrier(); err != nil {
			return time.Time{}, fmt.Errorf("timer %s: barrier failed: %w", t.name, err)
		}
	}
	return t.reg.clock.Now(), nil
}

func (t *Timer) changeState(to models.TimerState, at time.Time) {
	t.state = to
	t.transitions = append(t.transitions, models.Transition{State: to, At: at})
}
