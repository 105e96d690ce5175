package udpcast

import (
	"context"
	"net/netip"
	"sync"

	"github.com/bft-labs/udpcast/pkg/lifecycle"
	"github.com/bft-labs/udpcast/pkg/log"
)

// Service runs a Listener in the background and manages its lifecycle.
// Use NewService, then Start; Stop shuts the listener down gracefully.
type Service struct {
	handler Handler
	rawOpts []Option
	opts    options
	manager lifecycle.Manager

	mu       sync.Mutex
	cfg      ListenerConfig
	listener *Listener

	errMu   sync.Mutex
	lastErr error
}

// NewService validates cfg. The Service starts in lifecycle.StateStopped.
func NewService(cfg ListenerConfig, handler Handler, opts ...Option) (*Service, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	return &Service{
		handler: handler,
		rawOpts: opts,
		opts:    o,
		manager: lifecycle.NewManager(o.logger, o.stateObserver),
		cfg:     cfg,
	}, nil
}

// Start binds and runs the listener in a goroutine and returns
// immediately. The service moves to Running once the socket is bound, or
// to Crashed if binding fails.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	if !s.manager.CanStart() {
		return ErrAlreadyRunning
	}

	l, err := NewListener(s.cfg, s.handler, s.rawOpts...)
	if err != nil {
		return err
	}
	if err := s.manager.TransitionTo(lifecycle.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.manager.SetCancel(cancel)
	s.listener = l
	s.setErr(nil)

	go func() {
		select {
		case <-l.Ready():
			_ = s.manager.TransitionTo(lifecycle.StateRunning, "bound "+l.LocalAddr().String())
		case <-runCtx.Done():
		}
	}()

	s.manager.AddWorker()
	go func() {
		defer s.manager.WorkerDone()
		defer cancel()

		if err := l.Run(runCtx); err != nil {
			s.setErr(err)
			s.opts.logger.Error("listener failed", log.Err(err))
			_ = s.manager.TransitionTo(lifecycle.StateCrashed, err.Error())
			return
		}

		// The parent context ended without Stop being called.
		if st := s.manager.State(); st == lifecycle.StateRunning || st == lifecycle.StateStarting {
			_ = s.manager.TransitionTo(lifecycle.StateStopping, "context done")
			_ = s.manager.TransitionTo(lifecycle.StateStopped, "context done")
		}
	}()

	return nil
}

// Stop cancels the listener and waits for it to release the socket.
// It returns ErrShutdownTimeout if that takes too long.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Service) stopLocked() error {
	if !s.manager.CanStop() {
		return ErrNotRunning
	}
	if err := s.manager.TransitionTo(lifecycle.StateStopping, "Stop() called"); err != nil {
		return err
	}

	s.manager.Cancel()
	if err := s.manager.WaitWithTimeout(s.opts.shutdownTimeout); err != nil {
		_ = s.manager.TransitionTo(lifecycle.StateCrashed, "shutdown timeout")
		return err
	}
	_ = s.manager.TransitionTo(lifecycle.StateStopped, "graceful shutdown")
	return nil
}

// Reload replaces the listener config. A running listener is stopped and
// rebound with cfg; otherwise cfg is used by the next Start.
func (s *Service) Reload(ctx context.Context, cfg ListenerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg == s.cfg {
		return nil
	}
	s.cfg = cfg
	if !s.manager.CanStop() {
		return nil
	}

	s.opts.logger.Info("rebinding listener", log.String("addr", cfg.Address()))
	if err := s.stopLocked(); err != nil {
		return err
	}
	return s.startLocked(ctx)
}

// Status returns the current lifecycle state.
func (s *Service) Status() lifecycle.State {
	return s.manager.State()
}

// Err returns the error that crashed the last run, if any.
func (s *Service) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// Config returns the config used by the current or next run.
func (s *Service) Config() ListenerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// LocalAddr returns the bound address of the current run.
func (s *Service) LocalAddr() netip.AddrPort {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return netip.AddrPort{}
	}
	return l.LocalAddr()
}

// Received returns the datagram count of the current run.
func (s *Service) Received() uint64 {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return 0
	}
	return l.Received()
}

func (s *Service) setErr(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}
