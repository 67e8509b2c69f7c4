package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestModuleChildLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l.Module("sched").With("cc", 1).Info("slot done", "slot", "12.3")

	var obj map[string]any
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if obj["module"] != "sched" {
		t.Fatalf("expected module=sched, got %v", obj["module"])
	}
	if obj["slot"] != "12.3" {
		t.Fatalf("expected slot attr, got %v", obj["slot"])
	}
	if obj["cc"] != float64(1) {
		t.Fatalf("expected cc=1, got %v", obj["cc"])
	}
}

func TestDiscardDropsEverything(t *testing.T) {
	l := Discard()
	if l.DebugEnabled() {
		t.Fatal("discard logger must not report debug enabled")
	}
	l.Error("should not panic")
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := LevelFromString(in); got != want {
			t.Fatalf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelDebug)
	l := NewWithHandler(h).Module("ra")
	l.Warn("rar window expired", "rnti", "0x4601", "win", "[4.0, 5.0)")

	line := buf.String()
	if !strings.Contains(line, "[ra]") {
		t.Fatalf("expected module tag in output, got %q", line)
	}
	if !strings.Contains(line, "rar window expired") {
		t.Fatalf("expected message in output, got %q", line)
	}
	// Attributes are sorted by key.
	if strings.Index(line, "rnti=") > strings.Index(line, "win=") {
		t.Fatalf("expected sorted attrs, got %q", line)
	}
}

func TestConsoleHandlerLevelGate(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelInfo)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be gated at info level")
	}
	r := slog.NewRecord(time.Now(), slog.LevelDebug, "hidden", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
}
