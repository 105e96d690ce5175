//go:build windows

package udpcast

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

func (o socketOptions) control(_, address string, c syscall.RawConn) error {
	var optErr error
	err := c.Control(func(fd uintptr) {
		h := windows.Handle(fd)
		if o.reuseAddr {
			if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
				optErr = errors.Wrap(err, "set SO_REUSEADDR")
				return
			}
		}
		if o.broadcast {
			if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_BROADCAST, 1); err != nil {
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
