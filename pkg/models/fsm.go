package models

import (
	"errors"
	"fmt"
)

// TimerState is the state of a single timer. The numeric values are part of
// the wire format and of the event log, do not renumber them.
type TimerState uint8

const (
	TimerStopped TimerState = 0 // Initial state, and the state after every report
	TimerRunning TimerState = 1 // Interval is being measured
	TimerPaused  TimerState = 2 // Interval is open but not accumulating
)

func (s TimerState) String() string {
	switch s {
	case TimerStopped:
		return "stopped"
	case TimerRunning:
		return "running"
	case TimerPaused:
		return "paused"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the known timer states
func (s TimerState) Valid() bool {
	return s <= TimerPaused
}

// RegistryState is the lifecycle state of an event registry
type RegistryState string

const (
	RegistryUninitialized RegistryState = "uninitialized" // Never initialized
	RegistryActive        RegistryState = "active"        // Between Initialize and Finalize
	RegistryFinalized     RegistryState = "finalized"     // Collection done, reports valid
)

// ErrInvalidTransition is returned for a lifecycle transition the FSM does not allow
var ErrInvalidTransition = errors.New("invalid state transition")

// validTimerTransitions maps from-state to allowed to-states.
// Anything not listed is a silent no-op for the timer.
var validTimerTransitions = map[TimerState]map[TimerState]bool{
	TimerStopped: {
		TimerRunning: true, // Stopped → Running (start)
	},
	TimerRunning: {
		TimerPaused:  true, // Running → Paused (pause)
		TimerStopped: true, // Running → Stopped (stop, reports)
	},
	TimerPaused: {
		TimerRunning: true, // Paused → Running (resume)
		TimerStopped: true, // Paused → Stopped (stop, reports)
	},
}

// validRegistryTransitions maps from-state to allowed to-states
var validRegistryTransitions = map[RegistryState]map[RegistryState]bool{
	RegistryUninitialized: {
		RegistryActive: true, // Uninitialized → Active (initialize)
	},
	RegistryActive: {
		RegistryFinalized: true, // Active → Finalized (finalize, collects)
	},
	RegistryFinalized: {
		RegistryActive: true, // Finalized → Active (fresh epoch)
	},
}

// CanTransitionTimer reports whether a timer may move from one state to another.
// Staying in the same state is never a transition.
func CanTransitionTimer(from, to TimerState) bool {
	return validTimerTransitions[from][to]
}

// ValidateRegistryTransition checks if a registry lifecycle transition is valid
func ValidateRegistryTransition(from, to RegistryState) error {
	allowedStates, exists := validRegistryTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}

	if !allowedStates[to] {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, from, to)
	}

	return nil
}
