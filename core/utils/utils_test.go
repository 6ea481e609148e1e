package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatISOUsesZuluMillis(t *testing.T) {
	ts := time.Date(2025, 4, 1, 14, 30, 0, 5_000_000, time.FixedZone("x", 3600))
	if got := FormatISO(ts); got != "2025-04-01T13:30:00.005Z" {
		t.Fatalf("unexpected format: %s", got)
	}
}

func TestParseISOAcceptsBothPrecisions(t *testing.T) {
	for _, raw := range []string{"2025-03-15T10:00:00Z", "2025-03-15T10:00:00.000Z"} {
		got, err := ParseISO(raw)
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if !got.Equal(time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected instant for %s: %s", raw, got)
		}
	}
	if _, err := ParseISO("15/03/2025"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOptions(&buf, "warn", false)
	l.Printf("hidden %d", 1)
	l.Warnf("shown %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Printf("x")
	l.Errorf("y")
	if l.With("k", "v") != nil {
		t.Fatalf("expected nil logger passthrough")
	}
}
