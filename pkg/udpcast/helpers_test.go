package udpcast

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/udpcast/pkg/log"
)

var loopback = netip.MustParseAddr("127.0.0.1")

// collector is a Handler that records datagrams and forwards them on a channel.
type collector struct {
	mu  sync.Mutex
	all []Datagram
	ch  chan Datagram
}

func newCollector() *collector {
	return &collector{ch: make(chan Datagram, 64)}
}

func (c *collector) HandleDatagram(_ context.Context, d Datagram) error {
	c.mu.Lock()
	c.all = append(c.all, d)
	c.mu.Unlock()
	c.ch <- d
	return nil
}

func (c *collector) next(t *testing.T) Datagram {
	t.Helper()
	select {
	case d := <-c.ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
		return Datagram{}
	}
}

type entry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

// recordingLogger keeps every entry for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recordingLogger) add(level, msg string, fields []log.Field) {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry{level, msg, m})
	r.mu.Unlock()
}

func (r *recordingLogger) Debug(msg string, fields ...log.Field) { r.add("debug", msg, fields) }
func (r *recordingLogger) Info(msg string, fields ...log.Field)  { r.add("info", msg, fields) }
func (r *recordingLogger) Warn(msg string, fields ...log.Field)  { r.add("warn", msg, fields) }
func (r *recordingLogger) Error(msg string, fields ...log.Field) { r.add("error", msg, fields) }

func (r *recordingLogger) find(msg string) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return entry{}, false
}

func (r *recordingLogger) all(msg string) []entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entry
	for _, e := range r.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// scriptedReads returns the queued errors one per read, then falls through
// to the socket. A nil entry is a real read.
type scriptedReads struct {
	mu   sync.Mutex
	errs []error
}

func (s *scriptedReads) read(conn *net.UDPConn, buf []byte) (int, netip.AddrPort, error) {
	s.mu.Lock()
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	return conn.ReadFromUDPAddrPort(buf)
}

// loopbackConfig binds an ephemeral port on 127.0.0.1.
func loopbackConfig() ListenerConfig {
	cfg := DefaultListenerConfig()
	cfg.BindAddr = "127.0.0.1"
	cfg.Port = 0
	return cfg
}

// startListener runs l in the background and waits for it to bind.
// The returned channel yields Run's result.
func startListener(t *testing.T, ctx context.Context, l *Listener) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	select {
	case <-l.Ready():
	case err := <-done:
		t.Fatalf("listener exited before binding: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not bind")
	}
	return done
}

// dialTo returns a client socket connected to addr.
func dialTo(t *testing.T, addr netip.AddrPort) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(addr))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// rawListener binds a plain socket on an ephemeral loopback port.
func rawListener(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readDatagram(t *testing.T, conn *net.UDPConn) ([]byte, netip.AddrPort) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, src, err := conn.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)
	return buf[:n], netip.AddrPortFrom(src.Addr().Unmap(), src.Port())
}
