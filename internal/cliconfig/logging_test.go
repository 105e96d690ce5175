package cliconfig

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf, "warn")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message missing")
	}

	if _, err := NewLogger(&buf, "verbose"); err == nil {
		t.Error("NewLogger() expected error for unknown level")
	}
}
