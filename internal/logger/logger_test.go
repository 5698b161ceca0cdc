package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewSloggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brewmon.log")
	l := Config{File: path, Level: "debug"}.NewSlogger()
	l.Info("hello", "group", 1)

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "hello") || !strings.Contains(string(b), "group=1") {
		t.Fatalf("unexpected log content: %s", b)
	}
}

func TestColorTextHandlerAddsLevelColor(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := slog.New(h)
	l.Warn("careful")

	out := buf.String()
	if !strings.Contains(out, "\033[33m") {
		t.Fatalf("warn output missing yellow code: %q", out)
	}
	if !strings.Contains(out, "careful") {
		t.Fatalf("message lost: %q", out)
	}
}
