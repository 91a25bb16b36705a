// Package observe records the wall-clock bounds of one measurement epoch
package observe

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Epoch records when a rank started and finished measuring
type Epoch struct {
	StartedAt   time.Time
	CompletedAt time.Time

	clock clock.Clock
}

// NewEpoch starts an epoch now according to c
func NewEpoch(c clock.Clock) *Epoch {
	return &Epoch{
		StartedAt: c.Now(),
		clock:     c,
	}
}

// Complete records the end of the epoch. Later calls keep the first end.
func (e *Epoch) Complete() {
	if e.CompletedAt.IsZero() {
		e.CompletedAt = e.clock.Now()
	}
}

// Completed reports whether Complete was called
func (e *Epoch) Completed() bool {
	return !e.CompletedAt.IsZero()
}

// Duration returns the epoch length, measured up to now while still open
func (e *Epoch) Duration() time.Duration {
	if e.CompletedAt.IsZero() {
		return e.clock.Since(e.StartedAt)
	}
	return e.CompletedAt.Sub(e.StartedAt)
}
