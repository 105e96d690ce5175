package udpcast

import (
	"time"

	"github.com/bft-labs/udpcast/pkg/lifecycle"
	"github.com/bft-labs/udpcast/pkg/log"
)

// Option configures a Broadcaster, Listener or Service.
type Option func(*options)

type options struct {
	logger             log.Logger
	responseHandler    Handler
	responseBufferSize int
	backoffInitial     time.Duration
	backoffMax         time.Duration
	shutdownTimeout    time.Duration
	stateObserver      lifecycle.EventEmitter
}

func applyOptions(opts []Option) options {
	o := options{
		logger:             log.NewNoopLogger(),
		responseBufferSize: DefaultResponseBufferSize,
		backoffInitial:     50 * time.Millisecond,
		backoffMax:         5 * time.Second,
		shutdownTimeout:    lifecycle.ShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithResponseHandler makes a Broadcaster read datagrams that arrive on its
// own socket (replies to a broadcast) and pass them to h until Close.
func WithResponseHandler(h Handler) Option {
	return func(o *options) {
		o.responseHandler = h
	}
}

// WithResponseBufferSize sets the read buffer used for broadcast replies.
func WithResponseBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.responseBufferSize = n
		}
	}
}

// WithRetryBackoff sets the delay bounds a Listener waits after a transient
// receive failure.
func WithRetryBackoff(initial, max time.Duration) Option {
	return func(o *options) {
		if initial > 0 && max >= initial {
			o.backoffInitial = initial
			o.backoffMax = max
		}
	}
}

// WithShutdownTimeout bounds how long Service.Stop waits for the listener.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithStateObserver registers an observer for Service state changes.
func WithStateObserver(e lifecycle.EventEmitter) Option {
	return func(o *options) {
		o.stateObserver = e
	}
}
