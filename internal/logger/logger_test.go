package logger

import (
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
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" Debug ": slog.LevelDebug,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithoutFile(t *testing.T) {
	log, closer := New(Config{Level: "debug"})
	if log == nil {
		t.Fatal("nil logger")
	}
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}
	log.Debug("still usable after close")
}

func TestNewWithFileWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sst-mcp.log")
	log, closer := New(Config{Level: "info", File: path, MaxSizeMB: 1})
	log.Info("hello", "k", "v")
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(b), "hello") {
		t.Fatalf("log file missing entry: %q", b)
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	log, closer := New(Config{Level: "info", File: path})
	log.Debug("hidden")
	log.Info("visible")
	if err := closer(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.Contains(s, "visible") {
		t.Fatalf("missing info line in %q", s)
	}
	if strings.Contains(s, "hidden") {
		t.Fatalf("debug line should be suppressed: %q", s)
	}
}
