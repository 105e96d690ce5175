package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/udpcast/pkg/log"
)

var (
	ErrNotRunning      = errors.New("udpcast: not running")
	ErrAlreadyRunning  = errors.New("udpcast: already running")
	ErrShutdownTimeout = errors.New("udpcast: shutdown timeout")
)

// ShutdownTimeout is the default maximum time to wait for graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// allowed lists the legal targets for each state.
var allowed = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

var _ Manager = (*DefaultManager)(nil)

// DefaultManager implements Manager.
type DefaultManager struct {
	mu           sync.RWMutex
	state        State
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       log.Logger
	eventEmitter EventEmitter
}

// NewManager creates a manager in StateStopped. emitter may be nil.
func NewManager(logger log.Logger, emitter EventEmitter) *DefaultManager {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &DefaultManager{
		state:        StateStopped,
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (m *DefaultManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// TransitionTo attempts to transition to a new state.
func (m *DefaultManager) TransitionTo(newState State, reason string) error {
	m.mu.Lock()
	oldState := m.state
	if !canTransition(oldState, newState) {
		m.mu.Unlock()
		if oldState == StateStopped || oldState == StateCrashed {
			return ErrNotRunning
		}
		return ErrAlreadyRunning
	}
	m.state = newState
	m.mu.Unlock()

	// Emit outside the lock so emitters may query State.
	if m.eventEmitter != nil {
		m.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	m.logger.Debug("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

func canTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanStart returns true if the service may be started.
func (m *DefaultManager) CanStart() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateStopped || m.state == StateCrashed
}

// CanStop returns true if the service may be stopped.
func (m *DefaultManager) CanStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateRunning || m.state == StateStarting
}

// SetCancel stores the cancel function of the current run.
func (m *DefaultManager) SetCancel(cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = cancel
}

// Cancel cancels the current run, if any.
func (m *DefaultManager) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (m *DefaultManager) AddWorker()  { m.wg.Add(1) }
func (m *DefaultManager) WorkerDone() { m.wg.Done() }

// WaitWithTimeout waits for all workers to finish.
func (m *DefaultManager) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		m.logger.Warn("shutdown timeout, abandoning workers",
			log.Duration("timeout", timeout),
		)
		return ErrShutdownTimeout
	}
}
