//go:build unix

package udpcast

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func (o socketOptions) control(_, address string, c syscall.RawConn) error {
	var optErr error
	err := c.Control(func(fd uintptr) {
		if o.reuseAddr {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				optErr = errors.Wrap(err, "set SO_REUSEADDR")
				return
			}
		}
		if o.broadcast {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
				optErr = errors.Wrap(err, "set SO_BROADCAST")
			}
		}
	})
	if err == nil {
		err = optErr
	}
	if err != nil {
		return &SocketError{Op: OpConfigure, Addr: address, Err: err}
	}
	return nil
}
