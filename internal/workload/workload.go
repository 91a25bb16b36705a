// Package workload is the demo program behind "evtimings run": a fixed
// sequence of timed sections whose durations grow with the rank, so the
// cross-rank statistics show a visible imbalance.
package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/logging"
)

// Workload drives the demo sections on one rank
type Workload struct {
	scale  float64
	clock  clock.Clock
	logger *logging.Logger
}

// Option configures a Workload
type Option func(*Workload)

// WithClock replaces the clock used for sleeping
func WithClock(c clock.Clock) Option {
	return func(w *Workload) { w.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(w *Workload) { w.logger = l }
}

// New creates a workload. Every sleep is multiplied by scale, zero skips them.
func New(scale float64, opts ...Option) *Workload {
	w := &Workload{
		scale:  scale,
		clock:  clock.New(),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes every section against reg, which must be active. It returns
// ctx.Err() as soon as ctx is canceled, leaving the open timers to Finalize.
func (w *Workload) Run(ctx context.Context, reg *events.Registry) error {
	if !reg.Active() {
		return fmt.Errorf("workload: %w", events.ErrNotActive)
	}
	factor := time.Duration(reg.Rank() + 1)

	steps := []struct {
		name string
		fn   func(ctx context.Context, reg *events.Registry, factor time.Duration) error
	}{
		{"tagged", w.tagged},
		{"simple", w.simple},
		{"paused", w.paused},
		{"phase", w.phase},
	}

	for _, step := range steps {
		if err := step.fn(ctx, reg, factor); err != nil {
			w.logger.Warn("Workload interrupted", map[string]interface{}{
				"step":  step.name,
				"error": err.Error(),
			})
			return err
		}
		w.logger.Debug("Workload step done", map[string]interface{}{"step": step.name})
	}
	return nil
}

// tagged measures two intervals of one timer and attaches data tags
func (w *Workload) tagged(ctx context.Context, reg *events.Registry, factor time.Duration) error {
	t, err := reg.NewTimer("Testevent")
	if err != nil {
		return err
	}
	t.AddTags(5, 7, 8)
	if err := w.sleep(ctx, 100*time.Millisecond*factor); err != nil {
		return err
	}
	if err := t.Stop(); err != nil {
		return err
	}

	if err := t.Start(); err != nil {
		return err
	}
	if err := w.sleep(ctx, 150*time.Millisecond*factor); err != nil {
		return err
	}
	return t.Stop()
}

func (w *Workload) simple(ctx context.Context, reg *events.Registry, factor time.Duration) error {
	t, err := reg.NewTimer("Anothertestevent")
	if err != nil {
		return err
	}
	if err := w.sleep(ctx, 50*time.Millisecond*factor); err != nil {
		return err
	}
	return t.Stop()
}

// paused excludes a long pause from the measured interval
func (w *Workload) paused(ctx context.Context, reg *events.Registry, _ time.Duration) error {
	t, err := reg.NewTimer("Paused Event")
	if err != nil {
		return err
	}
	if err := w.sleep(ctx, 10*time.Millisecond); err != nil {
		return err
	}
	if err := t.Pause(); err != nil {
		return err
	}
	if err := w.sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}
	if err := w.sleep(ctx, 10*time.Millisecond); err != nil {
		return err
	}
	return t.Stop()
}

// phase runs a prefixed section: a barrier-aligned timer, a stored timer
// spanning both of its iterations and a reported checkpoint
func (w *Workload) phase(ctx context.Context, reg *events.Registry, factor time.Duration) error {
	scope := reg.PushPrefix("phase/")
	defer scope.Pop()

	io := reg.StoredTimer("io")
	for i := 0; i < 2; i++ {
		t, err := reg.NewTimer("step", events.Deferred())
		if err != nil {
			return err
		}
		if err := t.Start(events.Barrier()); err != nil {
			return err
		}
		t.AddTags(int64(i))
		if err := w.sleep(ctx, 20*time.Millisecond*factor); err != nil {
			return err
		}
		if err := t.Stop(); err != nil {
			return err
		}

		if err := io.Start(); err != nil {
			return err
		}
		if err := w.sleep(ctx, 5*time.Millisecond); err != nil {
			return err
		}
		if err := io.Pause(); err != nil {
			return err
		}
	}
	if err := io.Stop(); err != nil {
		return err
	}

	reg.AddEvent("checkpoint", w.scaled(5*time.Millisecond*factor))
	return nil
}

func (w *Workload) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * w.scale)
}

func (w *Workload) sleep(ctx context.Context, d time.Duration) error {
	d = w.scaled(d)
	if d <= 0 {
		return ctx.Err()
	}
	timer := w.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
