//go:build !unix && !windows

package udpcast

import (
	"runtime"
	"syscall"

	"github.com/pkg/errors"
)

func (o socketOptions) control(_, address string, _ syscall.RawConn) error {
	if o.reuseAddr || o.broadcast {
		return &SocketError{
			Op:   OpConfigure,
			Addr: address,
			Err:  errors.Errorf("socket options not supported on %s", runtime.GOOS),
		}
	}
	return nil
}
