package udpcast

import (
	"bytes"
	"net/netip"
	"time"

	"github.com/rs/xid"
)

// Datagram is a single received UDP packet.
type Datagram struct {
	// ID correlates log entries for one datagram. It is not on the wire.
	ID         string
	Source     netip.AddrPort
	Payload    []byte
	ReceivedAt time.Time
}

// newDatagram copies payload out of the receive buffer.
func newDatagram(src netip.AddrPort, payload []byte) Datagram {
	return Datagram{
		ID:         xid.New().String(),
		Source:     netip.AddrPortFrom(src.Addr().Unmap(), src.Port()),
		Payload:    bytes.Clone(payload),
		ReceivedAt: time.Now(),
	}
}
