package lifecycle

import (
	"context"
	"time"
)

// State represents the lifecycle state of a service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// Active reports whether the state has a worker in flight.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Manager manages the lifecycle state machine for a service.
type Manager interface {
	State() State
	CanStart() bool
	CanStop() bool

	// TransitionTo moves to newState, or returns an error if the move
	// is not allowed from the current state.
	TransitionTo(newState State, reason string) error

	// WaitWithTimeout returns ErrShutdownTimeout if workers are still
	// running after timeout.
	WaitWithTimeout(timeout time.Duration) error

	AddWorker()
	WorkerDone()

	// SetCancel stores the cancel func of the current run; Cancel calls it.
	SetCancel(cancel context.CancelFunc)
	Cancel()
}
