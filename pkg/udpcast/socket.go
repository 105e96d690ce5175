package udpcast

import (
	"context"
	"net"
	"net/netip"

	"github.com/pkg/errors"
)

// Defaults matching the classic listener: all interfaces, port 5559,
// 1 KiB receive buffer.
const (
	DefaultBindAddr           = "0.0.0.0"
	DefaultPort               = 5559
	DefaultBufferSize         = 1024
	DefaultResponseBufferSize = 4096
)

// BroadcastAddr is the limited broadcast address.
var BroadcastAddr = netip.AddrFrom4([4]byte{255, 255, 255, 255})

type socketOptions struct {
	reuseAddr bool
	broadcast bool
}

// listenUDP opens an IPv4 UDP socket on addr with opts applied before bind.
func listenUDP(ctx context.Context, addr string, opts socketOptions) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: opts.control}
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		var se *SocketError
		if errors.As(err, &se) {
			return nil, newSocketError(OpConfigure, addr, se.Err)
		}
		return nil, newSocketError(OpListen, addr, err)
	}
	return pc.(*net.UDPConn), nil
}

func localAddrPort(c *net.UDPConn) netip.AddrPort {
	if ua, ok := c.LocalAddr().(*net.UDPAddr); ok {
		ap := ua.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}
