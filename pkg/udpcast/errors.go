package udpcast

import (
	"net"
	"os"

	"github.com/pkg/errors"

	"github.com/bft-labs/udpcast/pkg/lifecycle"
)

var (
	ErrInvalidPort       = errors.New("udpcast: port out of range")
	ErrInvalidAddr       = errors.New("udpcast: invalid address")
	ErrInvalidBufferSize = errors.New("udpcast: buffer size must be positive")
	ErrNilHandler        = errors.New("udpcast: nil handler")
	ErrClosed            = errors.New("udpcast: closed")

	ErrAlreadyRunning  = lifecycle.ErrAlreadyRunning
	ErrNotRunning      = lifecycle.ErrNotRunning
	ErrShutdownTimeout = lifecycle.ErrShutdownTimeout
)

// Socket operations reported in SocketError.Op.
const (
	OpListen    = "listen"
	OpConfigure = "configure"
	OpSend      = "send"
	OpReceive   = "receive"
)

// SocketError describes a failure at one of the socket boundaries.
type SocketError struct {
	Op   string
	Addr string
	Err  error
}

func (e *SocketError) Error() string {
	if e.Addr == "" {
		return "udpcast: " + e.Op + ": " + e.Err.Error()
	}
	return "udpcast: " + e.Op + " " + e.Addr + ": " + e.Err.Error()
}

func (e *SocketError) Unwrap() error { return e.Err }

// Fatal reports whether retrying the operation on the same socket is
// pointless. Bind and option failures are configuration faults; send and
// receive failures are fatal only when the socket is gone or the operation
// is not permitted.
func (e *SocketError) Fatal() bool {
	switch e.Op {
	case OpListen, OpConfigure:
		return true
	}
	return errors.Is(e.Err, net.ErrClosed) || errors.Is(e.Err, os.ErrPermission)
}

// newSocketError records the call stack so fatal faults can be printed
// with %+v.
func newSocketError(op, addr string, err error) error {
	return errors.WithStack(&SocketError{Op: op, Addr: addr, Err: err})
}

// IsTransient reports whether err is a socket failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *SocketError
	if errors.As(err, &se) {
		return !se.Fatal()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
