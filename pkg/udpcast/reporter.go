package udpcast

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/bft-labs/udpcast/pkg/log"
)

// DefaultLabel prefixes every text report line. The trailing space is part
// of the label, so the payload follows after two spaces.
const DefaultLabel = "received incoming call info : "

// Handler processes one received datagram. A non-nil error stops the
// Listener that called it.
type Handler interface {
	HandleDatagram(ctx context.Context, d Datagram) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d Datagram) error

func (f HandlerFunc) HandleDatagram(ctx context.Context, d Datagram) error {
	return f(ctx, d)
}

// TextReporter writes one line per datagram: the label, optionally the
// sender, then the raw payload.
type TextReporter struct {
	mu         sync.Mutex
	w          io.Writer
	label      string
	showSource bool
}

// NewTextReporter returns a reporter writing to w. An empty label means
// DefaultLabel.
func NewTextReporter(w io.Writer, label string, showSource bool) *TextReporter {
	if label == "" {
		label = DefaultLabel
	}
	return &TextReporter{w: w, label: label, showSource: showSource}
}

// Configure changes the label and sender display for subsequent lines.
func (r *TextReporter) Configure(label string, showSource bool) {
	if label == "" {
		label = DefaultLabel
	}
	r.mu.Lock()
	r.label = label
	r.showSource = showSource
	r.mu.Unlock()
}

func (r *TextReporter) HandleDatagram(_ context.Context, d Datagram) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.showSource {
		_, err = fmt.Fprintf(r.w, "%s %s %s\n", r.label, d.Source, d.Payload)
	} else {
		_, err = fmt.Fprintf(r.w, "%s %s\n", r.label, d.Payload)
	}
	return errors.Wrap(err, "write report")
}

// LogReporter emits each datagram as a structured info entry.
type LogReporter struct {
	logger log.Logger
}

func NewLogReporter(logger log.Logger) *LogReporter {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) HandleDatagram(_ context.Context, d Datagram) error {
	r.logger.Info("datagram",
		log.String("id", d.ID),
		log.Addr("source", d.Source),
		log.Int("bytes", len(d.Payload)),
		log.String("payload", string(d.Payload)))
	return nil
}
