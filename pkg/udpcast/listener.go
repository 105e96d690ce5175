package udpcast

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/bft-labs/udpcast/pkg/lifecycle"
	"github.com/bft-labs/udpcast/pkg/log"
)

// ListenerConfig describes the socket a Listener binds.
type ListenerConfig struct {
	BindAddr string
	// Port 0 binds an ephemeral port.
	Port int
	// BufferSize is the receive buffer; longer datagrams are truncated.
	BufferSize int
	ReuseAddr  bool
}

// DefaultListenerConfig returns 0.0.0.0:5559 with a 1024 byte buffer.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		BindAddr:   DefaultBindAddr,
		Port:       DefaultPort,
		BufferSize: DefaultBufferSize,
	}
}

// Validate checks the config and fills in the default bind address.
func (c *ListenerConfig) Validate() error {
	if c.BindAddr == "" {
		c.BindAddr = DefaultBindAddr
	}
	addr, err := netip.ParseAddr(c.BindAddr)
	if err != nil || !addr.Unmap().Is4() {
		return errors.Wrapf(ErrInvalidAddr, "bind address %q", c.BindAddr)
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.Wrapf(ErrInvalidPort, "port %d", c.Port)
	}
	if c.BufferSize <= 0 {
		return errors.Wrapf(ErrInvalidBufferSize, "buffer size %d", c.BufferSize)
	}
	return nil
}

// Address returns host:port.
func (c ListenerConfig) Address() string {
	return net.JoinHostPort(c.BindAddr, strconv.Itoa(c.Port))
}

// ListenerState is what the receive loop is doing right now.
type ListenerState int32

const (
	// StateIdle: blocked waiting for the next datagram.
	StateIdle ListenerState = iota
	// StateReporting: handing a datagram to the handler.
	StateReporting
)

func (s ListenerState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateReporting:
		return "Reporting"
	default:
		return "Unknown"
	}
}

// Listener receives datagrams on one socket and reports them sequentially.
type Listener struct {
	cfg     ListenerConfig
	handler Handler
	opts    options

	running  atomic.Bool
	state    atomic.Int32
	received atomic.Uint64
	local    atomic.Pointer[netip.AddrPort]

	ready     chan struct{}
	readyOnce sync.Once

	// readFrom reads one datagram from conn. Tests replace it to inject
	// receive failures.
	readFrom func(conn *net.UDPConn, buf []byte) (int, netip.AddrPort, error)
}

func readFromConn(conn *net.UDPConn, buf []byte) (int, netip.AddrPort, error) {
	return conn.ReadFromUDPAddrPort(buf)
}

// NewListener validates cfg. The socket is bound by Run.
func NewListener(cfg ListenerConfig, handler Handler, opts ...Option) (*Listener, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Listener{
		cfg:      cfg,
		handler:  handler,
		opts:     applyOptions(opts),
		ready:    make(chan struct{}),
		readFrom: readFromConn,
	}, nil
}

// Run binds the socket and reports datagrams until ctx is cancelled, in
// which case it returns nil. Bind failures, fatal receive failures and
// handler errors end Run with an error. Each datagram is handled before the
// next receive starts.
func (l *Listener) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)
	defer l.state.Store(int32(StateIdle))

	if ctx.Err() != nil {
		return nil
	}

	addr := l.cfg.Address()
	conn, err := listenUDP(ctx, addr, socketOptions{reuseAddr: l.cfg.ReuseAddr})
	if err != nil {
		return err
	}
	defer conn.Close()

	// Closing the socket is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	local := localAddrPort(conn)
	l.local.Store(&local)
	l.readyOnce.Do(func() { close(l.ready) })
	l.opts.logger.Info("listening",
		log.Addr("addr", local),
		log.Int("buffer_size", l.cfg.BufferSize))

	buf := make([]byte, l.cfg.BufferSize)
	retry := lifecycle.NewBackoff(l.opts.backoffInitial, l.opts.backoffMax)
	for {
		l.state.Store(int32(StateIdle))
		n, src, err := l.readFrom(conn, buf)
		if err != nil {
			if ctx.Err() != nil {
				l.opts.logger.Info("listener stopped",
					log.Addr("addr", local),
					log.Uint64("received", l.received.Load()))
				return nil
			}
			serr := newSocketError(OpReceive, local.String(), err)
			if !IsTransient(serr) {
				return serr
			}
			l.opts.logger.Warn("receive failed, retrying",
				log.Err(err),
				log.Duration("backoff", retry.Current()))
			if retry.Wait(ctx) != nil {
				return nil
			}
			continue
		}
		retry.Reset()

		l.state.Store(int32(StateReporting))
		d := newDatagram(src, buf[:n])
		l.received.Add(1)
		l.opts.logger.Debug("datagram received",
			log.String("id", d.ID),
			log.Addr("from", d.Source),
			log.Int("bytes", n))

		if err := l.handler.HandleDatagram(ctx, d); err != nil {
			return errors.Wrapf(err, "report datagram %s", d.ID)
		}
	}
}

// Ready is closed once the socket is bound for the first time.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// LocalAddr returns the bound address, or the zero value before Ready.
func (l *Listener) LocalAddr() netip.AddrPort {
	if p := l.local.Load(); p != nil {
		return *p
	}
	return netip.AddrPort{}
}

// State returns the receive loop state.
func (l *Listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// Received returns the number of datagrams received so far.
func (l *Listener) Received() uint64 {
	return l.received.Load()
}

// Config returns the validated config.
func (l *Listener) Config() ListenerConfig {
	return l.cfg
}
