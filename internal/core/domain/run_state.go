package domain

import (
	"errors"
	"time"
)

type RunState string

const (
	RunStateLoadingManifest      RunState = "loading_manifest"
	RunStateLoading              RunState = "loading"
	RunStateInitializing         RunState = "initializing"
	RunStateCompleted            RunState = "completed"
	RunStateManifestFailed       RunState = "manifest_failed"
	RunStateInitializationFailed RunState = "initialization_failed"
	RunStateFailed               RunState = "failed"
	RunStateAborted              RunState = "aborted"
)

// ErrInvalidTransition is returned when a run tries to move to a state it cannot reach.
var ErrInvalidTransition = errors.New("invalid run state transition")

// ValidRunTransitions lists the states reachable from each state.
// Terminal states have no entry. Any live state may fail unexpectedly.
var ValidRunTransitions = map[RunState][]RunState{
	RunStateLoadingManifest: {
		RunStateLoading,
		RunStateInitializing,
		RunStateManifestFailed,
		RunStateAborted,
		RunStateFailed,
	},
	RunStateLoading: {RunStateInitializing, RunStateAborted, RunStateFailed},
	RunStateInitializing: {
		RunStateCompleted,
		RunStateInitializationFailed,
		RunStateAborted,
		RunStateFailed,
	},
}

// CanTransition checks whether from -> to is allowed.
func CanTransition(from, to RunState) bool {
	for _, target := range ValidRunTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s RunState) IsTerminal() bool {
	_, live := ValidRunTransitions[s]
	return !live
}

// Transition is a recorded state change.
type Transition struct {
	From      RunState  `json:"from"`
	To        RunState  `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Description returns a human-readable description of a state.
func (s RunState) Description() string {
	switch s {
	case RunStateLoadingManifest:
		return "Fetching the resource manifest"
	case RunStateLoading:
		return "Loading resources"
	case RunStateInitializing:
		return "Running initialization"
	case RunStateCompleted:
		return "Run finished"
	case RunStateManifestFailed:
		return "Manifest could not be loaded"
	case RunStateInitializationFailed:
		return "Initialization returned an error"
	case RunStateFailed:
		return "Run ended with an unexpected error"
	case RunStateAborted:
		return "Run was abandoned before finishing"
	default:
		return "Unknown state"
	}
}
