package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf))

	z.Info("datagram",
		String("id", "c1"),
		Int("bytes", 5),
		Uint64("received", 7),
		Bool("ok", true),
		Duration("wait", 2*time.Second),
		Addr("source", netip.MustParseAddrPort("10.0.0.2:4000")),
		Err(errors.New("boom")),
		Any("tags", []string{"a"}))

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}

	want := map[string]interface{}{
		"level":    "info",
		"message":  "datagram",
		"id":       "c1",
		"bytes":    float64(5),
		"received": float64(7),
		"ok":       true,
		"source":   "10.0.0.2:4000",
		"error":    "boom",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["wait"]; !ok {
		t.Error("wait field missing")
	}
}

func TestZerologAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	z.Debug("debug")
	z.Info("info")
	if buf.Len() != 0 {
		t.Fatalf("disabled levels wrote %q", buf.String())
	}

	z.Error("error")
	if buf.Len() == 0 {
		t.Error("error level not written")
	}
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NewNoopLogger()
	l.Debug("x", String("k", "v"))
	l.Error("x", Err(errors.New("e")))
}
