package udpcast

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ListenerConfig
		wantErr error
	}{
		{"defaults", DefaultListenerConfig(), nil},
		{"empty bind defaults", ListenerConfig{Port: 5559, BufferSize: 1}, nil},
		{"ephemeral port", ListenerConfig{BindAddr: "127.0.0.1", BufferSize: 512}, nil},
		{"negative port", ListenerConfig{Port: -1, BufferSize: 1024}, ErrInvalidPort},
		{"port too large", ListenerConfig{Port: 65536, BufferSize: 1024}, ErrInvalidPort},
		{"zero buffer", ListenerConfig{Port: 5559}, ErrInvalidBufferSize},
		{"hostname bind", ListenerConfig{BindAddr: "localhost", Port: 5559, BufferSize: 1024}, ErrInvalidAddr},
		{"ipv6 bind", ListenerConfig{BindAddr: "::", Port: 5559, BufferSize: 1024}, ErrInvalidAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotEmpty(t, tt.cfg.BindAddr)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestDefaultListenerConfig(t *testing.T) {
	cfg := DefaultListenerConfig()
	assert.Equal(t, "0.0.0.0", cfg.BindAddr)
	assert.Equal(t, 5559, cfg.Port)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, "0.0.0.0:5559", cfg.Address())
}

func TestNewListener_NilHandler(t *testing.T) {
	_, err := NewListener(DefaultListenerConfig(), nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestListener_ReportsInArrivalOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCollector()
	l, err := NewListener(loopbackConfig(), c)
	require.NoError(t, err)
	done := startListener(t, ctx, l)

	client := dialTo(t, l.LocalAddr())
	for i := 0; i < 5; i++ {
		_, err := client.Write([]byte(fmt.Sprintf("msg-%d", i)))
		require.NoError(t, err)
	}

	clientAddr := client.LocalAddr().(*net.UDPAddr).AddrPort()
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		d := c.next(t)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), string(d.Payload))
		assert.Equal(t, clientAddr.Port(), d.Source.Port())
		assert.Equal(t, "127.0.0.1", d.Source.Addr().String())
		assert.False(t, d.ReceivedAt.IsZero())
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
	assert.Equal(t, uint64(5), l.Received())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestListener_SamePayloadTwiceIsTwoReports(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCollector()
	l, err := NewListener(loopbackConfig(), c)
	require.NoError(t, err)
	startListener(t, ctx, l)

	client := dialTo(t, l.LocalAddr())
	for i := 0; i < 2; i++ {
		_, err := client.Write([]byte("hello"))
		require.NoError(t, err)
	}

	first, second := c.next(t), c.next(t)
	assert.Equal(t, "hello", string(first.Payload))
	assert.Equal(t, "hello", string(second.Payload))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestListener_EmptyDatagram(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCollector()
	l, err := NewListener(loopbackConfig(), c)
	require.NoError(t, err)
	startListener(t, ctx, l)

	_, err = dialTo(t, l.LocalAddr()).Write(nil)
	require.NoError(t, err)

	d := c.next(t)
	assert.Empty(t, d.Payload)
}

func TestListener_PayloadIsCopied(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCollector()
	l, err := NewListener(loopbackConfig(), c)
	require.NoError(t, err)
	startListener(t, ctx, l)

	client := dialTo(t, l.LocalAddr())
	_, err = client.Write([]byte("first-payload"))
	require.NoError(t, err)
	first := c.next(t)

	_, err = client.Write([]byte("XXXXX"))
	require.NoError(t, err)
	c.next(t)

	assert.Equal(t, "first-payload", string(first.Payload))
}

func TestListener_TruncatesToBufferSize(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := loopbackConfig()
	cfg.BufferSize = 4
	c := newCollector()
	l, err := NewListener(cfg, c)
	require.NoError(t, err)
	startListener(t, ctx, l)

	_, err = dialTo(t, l.LocalAddr()).Write([]byte("hello world"))
	require.NoError(t, err)

	assert.Equal(t, "hell", string(c.next(t).Payload))
}

func TestListener_StateDuringReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var l *Listener
	states := make(chan ListenerState, 1)
	h := HandlerFunc(func(_ context.Context, d Datagram) error {
		states <- l.State()
		return nil
	})
	l, err := NewListener(loopbackConfig(), h)
	require.NoError(t, err)
	startListener(t, ctx, l)

	_, err = dialTo(t, l.LocalAddr()).Write([]byte("x"))
	require.NoError(t, err)

	select {
	case st := <-states:
		assert.Equal(t, StateReporting, st)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	assert.Eventually(t, func() bool { return l.State() == StateIdle }, time.Second, 5*time.Millisecond)
}

func TestListener_HandlerErrorEndsRun(t *testing.T) {
	boom := errors.New("stdout closed")
	l, err := NewListener(loopbackConfig(), HandlerFunc(func(context.Context, Datagram) error {
		return boom
	}))
	require.NoError(t, err)
	done := startListener(t, context.Background(), l)

	_, err = dialTo(t, l.LocalAddr()).Write([]byte("x"))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after handler error")
	}
}

func TestListener_BindFailureIsFatal(t *testing.T) {
	occupied := rawListener(t)
	port := occupied.LocalAddr().(*net.UDPAddr).Port

	cfg := loopbackConfig()
	cfg.Port = port
	l, err := NewListener(cfg, newCollector())
	require.NoError(t, err)

	err = l.Run(context.Background())
	require.Error(t, err)

	var se *SocketError
	require.True(t, errors.As(err, &se), "got %T: %v", err, err)
	assert.Equal(t, OpListen, se.Op)
	assert.True(t, se.Fatal())
	assert.False(t, IsTransient(err))
}

func TestListener_TransientReceiveErrorsAreRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refused := errors.New("connection refused")
	logger := &recordingLogger{}
	c := newCollector()
	l, err := NewListener(loopbackConfig(), c,
		WithLogger(logger),
		WithRetryBackoff(10*time.Millisecond, time.Second))
	require.NoError(t, err)

	// Two failures, a good read, one more failure, then good reads.
	script := &scriptedReads{errs: []error{refused, refused, nil, refused}}
	l.readFrom = script.read
	done := startListener(t, ctx, l)

	client := dialTo(t, l.LocalAddr())
	_, err = client.Write([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(c.next(t).Payload))

	_, err = client.Write([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(c.next(t).Payload))

	warnings := logger.all("receive failed, retrying")
	require.Len(t, warnings, 3)
	assert.Equal(t, 10*time.Millisecond, warnings[0].fields["backoff"])
	assert.Equal(t, 20*time.Millisecond, warnings[1].fields["backoff"])
	// A successful read resets the delay.
	assert.Equal(t, 10*time.Millisecond, warnings[2].fields["backoff"])
	assert.Equal(t, uint64(2), l.Received())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestListener_FatalReceiveErrorEndsRun(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"closed socket", net.ErrClosed},
		{"permission denied", os.ErrPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollector()
			l, err := NewListener(loopbackConfig(), c)
			require.NoError(t, err)
			l.readFrom = (&scriptedReads{errs: []error{tt.err}}).read

			var runErr error
			select {
			case runErr = <-runInBackground(l):
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return after fatal receive error")
			}

			var se *SocketError
			require.True(t, errors.As(runErr, &se), "got %T: %v", runErr, runErr)
			assert.Equal(t, OpReceive, se.Op)
			assert.True(t, se.Fatal())
			assert.ErrorIs(t, runErr, tt.err)
			assert.False(t, IsTransient(runErr))
			assert.Zero(t, l.Received())
		})
	}
}

func TestListener_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := &recordingLogger{}
	l, err := NewListener(loopbackConfig(), newCollector(),
		WithLogger(logger),
		WithRetryBackoff(time.Minute, time.Minute))
	require.NoError(t, err)
	l.readFrom = (&scriptedReads{errs: []error{errors.New("no buffer space available")}}).read
	done := startListener(t, ctx, l)

	require.Eventually(t, func() bool {
		_, ok := logger.find("receive failed, retrying")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return while waiting to retry")
	}
}

func TestListener_RunTwiceConcurrently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := NewListener(loopbackConfig(), newCollector())
	require.NoError(t, err)
	startListener(t, ctx, l)

	assert.ErrorIs(t, l.Run(ctx), ErrAlreadyRunning)
}

func TestListener_CanceledBeforeRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l, err := NewListener(loopbackConfig(), newCollector())
	require.NoError(t, err)
	assert.NoError(t, l.Run(ctx))
}

func TestListener_LogsReceivedDatagrams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := &recordingLogger{}
	c := newCollector()
	l, err := NewListener(loopbackConfig(), c, WithLogger(logger))
	require.NoError(t, err)
	startListener(t, ctx, l)

	_, err = dialTo(t, l.LocalAddr()).Write([]byte("abc"))
	require.NoError(t, err)
	d := c.next(t)

	e, ok := logger.find("datagram received")
	require.True(t, ok)
	assert.Equal(t, d.ID, e.fields["id"])
	assert.Equal(t, 3, e.fields["bytes"])

	_, ok = logger.find("listening")
	assert.True(t, ok)
}

// runInBackground runs l in the background without waiting for Ready.
func runInBackground(l *Listener) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	return done
}

func TestListenerState_String(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "Reporting", StateReporting.String())
	assert.Equal(t, "Unknown", ListenerState(9).String())
}
