package observe

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_LevelIsLive(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelWarn)
	l, closer, err := NewLogger(LogOptions{Level: lv, Stderr: &buf})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	l.Info("hidden")
	lv.Set(slog.LevelDebug)
	l.Debug("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("output = %q", out)
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "chattts.log")
	var buf bytes.Buffer
	l, closer, err := NewLogger(LogOptions{File: path, Stderr: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("to both", "guild_id", "g1")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, out := range []string{buf.String(), string(data)} {
		if !strings.Contains(out, "to both") || !strings.Contains(out, "guild_id=g1") {
			t.Errorf("missing record in %q", out)
		}
	}
}
