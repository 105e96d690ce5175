package udpcast

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/pkg/errors"

	"github.com/bft-labs/udpcast/pkg/log"
)

// BroadcasterConfig describes where a Broadcaster sends.
type BroadcasterConfig struct {
	// Addr is the destination address. The zero value means BroadcastAddr.
	Addr      netip.Addr
	Port      int
	ReuseAddr bool
}

// DefaultBroadcasterConfig returns a config targeting 255.255.255.255:port
// with address reuse enabled.
func DefaultBroadcasterConfig(port int) BroadcasterConfig {
	return BroadcasterConfig{
		Addr:      BroadcastAddr,
		Port:      port,
		ReuseAddr: true,
	}
}

// Validate checks the config and fills in the default address.
func (c *BroadcasterConfig) Validate() error {
	if !validPort(c.Port) {
		return errors.Wrapf(ErrInvalidPort, "port %d", c.Port)
	}
	if !c.Addr.IsValid() {
		c.Addr = BroadcastAddr
	}
	c.Addr = c.Addr.Unmap()
	if !c.Addr.Is4() {
		return errors.Wrapf(ErrInvalidAddr, "%s is not an IPv4 address", c.Addr)
	}
	return nil
}

// Broadcaster sends datagrams to a fixed destination. The socket is opened
// on the first Send and reused until Close or a failed send.
type Broadcaster struct {
	dst       netip.AddrPort
	reuseAddr bool
	opts      options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *net.UDPConn
	closed  bool
	readers sync.WaitGroup
}

// NewBroadcaster validates cfg. No socket is opened until Send.
func NewBroadcaster(cfg BroadcasterConfig, opts ...Option) (*Broadcaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		dst:       netip.AddrPortFrom(cfg.Addr, uint16(cfg.Port)),
		reuseAddr: cfg.ReuseAddr,
		opts:      applyOptions(opts),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Destination returns the address datagrams are sent to.
func (b *Broadcaster) Destination() netip.AddrPort {
	return b.dst
}

// Send writes payload as exactly one datagram. It returns once the local
// stack has accepted the packet; delivery is not confirmed. A deadline on
// ctx bounds the write.
func (b *Broadcaster) Send(ctx context.Context, payload []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.ensureConnLocked(ctx)
	if err != nil {
		return 0, err
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return 0, newSocketError(OpSend, b.dst.String(), err)
	}

	n, err := conn.WriteToUDPAddrPort(payload, b.dst)
	if err != nil {
		_ = b.closeConnLocked()
		b.opts.logger.Warn("broadcast send failed",
			log.Addr("to", b.dst),
			log.Err(err))
		return n, newSocketError(OpSend, b.dst.String(), err)
	}

	b.opts.logger.Debug("broadcast sent",
		log.Addr("to", b.dst),
		log.Int("bytes", n))
	return n, nil
}

// SendString sends msg as raw bytes.
func (b *Broadcaster) SendString(ctx context.Context, msg string) (int, error) {
	return b.Send(ctx, []byte(msg))
}

// LocalAddr returns the local socket address, or the zero value if no
// socket is open.
func (b *Broadcaster) LocalAddr() netip.AddrPort {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return netip.AddrPort{}
	}
	return localAddrPort(b.conn)
}

// Close closes the socket and waits for the response reader to exit.
// It is safe to call more than once.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	err := b.closeConnLocked()
	b.mu.Unlock()

	b.cancel()
	b.readers.Wait()
	return err
}

func (b *Broadcaster) ensureConnLocked(ctx context.Context) (*net.UDPConn, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if b.conn != nil {
		return b.conn, nil
	}

	conn, err := listenUDP(ctx, ":0", socketOptions{reuseAddr: b.reuseAddr, broadcast: true})
	if err != nil {
		return nil, err
	}
	b.conn = conn
	b.opts.logger.Debug("broadcast socket opened", log.Addr("local", localAddrPort(conn)))

	if b.opts.responseHandler != nil {
		b.readers.Add(1)
		go b.readResponses(conn)
	}
	return conn, nil
}

func (b *Broadcaster) closeConnLocked() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	b.opts.logger.Debug("broadcast socket closed")
	return err
}

// readResponses runs until conn is closed.
func (b *Broadcaster) readResponses(conn *net.UDPConn) {
	defer b.readers.Done()

	buf := make([]byte, b.opts.responseBufferSize)
	for {
		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				b.opts.logger.Warn("response read failed", log.Err(err))
			}
			return
		}

		d := newDatagram(src, buf[:n])
		b.opts.logger.Debug("response received",
			log.String("id", d.ID),
			log.Addr("from", d.Source),
			log.Int("bytes", n))
		if err := b.opts.responseHandler.HandleDatagram(b.ctx, d); err != nil {
			b.opts.logger.Warn("response handler failed",
				log.String("id", d.ID),
				log.Err(err))
		}
	}
}

// Broadcast sends payload once to addr:port and closes the socket. A zero
// addr means BroadcastAddr.
func Broadcast(ctx context.Context, addr netip.Addr, port int, payload []byte, opts ...Option) error {
	cfg := DefaultBroadcasterConfig(port)
	cfg.Addr = addr
	b, err := NewBroadcaster(cfg, opts...)
	if err != nil {
		return err
	}
	_, err = b.Send(ctx, payload)
	if cerr := b.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close broadcast socket")
	}
	return err
}
