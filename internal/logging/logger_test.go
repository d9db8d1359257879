package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	return slog.New(newConsoleHandler(&buf, levelVar)), &buf
}

func TestConsoleHandlerFormat(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	logger = NewComponentLogger(logger, "worker")

	logger.Info("task finished",
		String(FieldWorkerID, "abc123"),
		Int("attempt", 2))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, " INFO worker: task finished") {
		t.Fatalf("line %q missing level/component prefix", line)
	}
	if !strings.Contains(line, "worker_id=abc123") {
		t.Fatalf("line %q missing worker_id attr", line)
	}
	if !strings.Contains(line, "attempt=2") {
		t.Fatalf("line %q missing attempt attr", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	logger.Info("msg", String("path", "/tmp/with space"))
	if !strings.Contains(buf.String(), `path="/tmp/with space"`) {
		t.Fatalf("value with space not quoted: %q", buf.String())
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelWarn)
	logger.Info("invisible")
	logger.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Fatalf("info line emitted below threshold: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line suppressed: %q", out)
	}
}

func TestJSONHandlerKeys(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newJSONHandler(&buf, levelVar))

	logger.Info("hello", String("k", "v"))
	out := buf.String()
	for _, want := range []string{`"ts":`, `"level":"info"`, `"msg":"hello"`, `"k":"v"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("json line %q missing %s", out, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":  slog.LevelDebug,
		"INFO":   slog.LevelInfo,
		" warn ": slog.LevelWarn,
		"error":  slog.LevelError,
		"":       slog.LevelInfo,
		"bogus":  slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("New accepted an unknown format")
	}
}

func TestComponentLoggerNilBase(t *testing.T) {
	logger := NewComponentLogger(nil, "events")
	// Must not panic and must stay silent.
	logger.Info("ignored")
}

func TestNoopHandlerDisabled(t *testing.T) {
	if (NoopHandler{}).Enabled(context.Background(), slog.LevelError) {
		t.Fatal("noop handler reported enabled")
	}
}
