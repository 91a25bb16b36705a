package models

import (
	"errors"
	"testing"
)

func TestCanTransitionTimer(t *testing.T) {
	tests := []struct {
		name     string
		from     TimerState
		to       TimerState
		expected bool
	}{
		// Valid transitions
		{"Stopped to Running", TimerStopped, TimerRunning, true},
		{"Running to Paused", TimerRunning, TimerPaused, true},
		{"Running to Stopped", TimerRunning, TimerStopped, true},
		{"Paused to Running", TimerPaused, TimerRunning, true},
		{"Paused to Stopped", TimerPaused, TimerStopped, true},

		// No-ops
		{"Stopped to Stopped", TimerStopped, TimerStopped, false},
		{"Stopped to Paused", TimerStopped, TimerPaused, false},
		{"Running to Running", TimerRunning, TimerRunning, false},
		{"Paused to Paused", TimerPaused, TimerPaused, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionTimer(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransitionTimer(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestValidateRegistryTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RegistryState
		to      RegistryState
		wantErr bool
	}{
		{"Uninitialized to Active", RegistryUninitialized, RegistryActive, false},
		{"Active to Finalized", RegistryActive, RegistryFinalized, false},
		{"Finalized to Active", RegistryFinalized, RegistryActive, false},

		{"Uninitialized to Finalized", RegistryUninitialized, RegistryFinalized, true},
		{"Active to Active", RegistryActive, RegistryActive, true},
		{"Finalized to Finalized", RegistryFinalized, RegistryFinalized, true},
		{"Unknown source", RegistryState("bogus"), RegistryActive, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegistryTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRegistryTransition(%v, %v) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}

	if err := ValidateRegistryTransition(RegistryActive, RegistryActive); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTimerStateString(t *testing.T) {
	tests := []struct {
		state    TimerState
		expected string
		valid    bool
	}{
		{TimerStopped, "stopped", true},
		{TimerRunning, "running", true},
		{TimerPaused, "paused", true},
		{TimerState(7), "unknown(7)", false},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
			if got := tt.state.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}
