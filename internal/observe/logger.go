package observe

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures [NewLogger].
type LogOptions struct {
	// Level is shared with the handler so it can be changed at runtime.
	// When nil, info is used.
	Level *slog.LevelVar

	// File, when set, additionally writes logs to a rotating file.
	File string

	// MaxSizeMB is the size at which the file rotates. Default: 64.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept. Default: 3.
	MaxBackups int

	// MaxAgeDays is how long rotated files are kept. Default: 7.
	MaxAgeDays int

	// Stderr overrides the console writer. Intended for tests.
	Stderr io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds a text logger writing to stderr and, if configured, to a
// lumberjack-rotated file. The returned closer releases the file.
func NewLogger(opts LogOptions) (*slog.Logger, io.Closer, error) {
	if opts.Level == nil {
		opts.Level = new(slog.LevelVar)
	}
	var out io.Writer = os.Stderr
	if opts.Stderr != nil {
		out = opts.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("observe: create log directory: %w", err)
		}
		fw := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    defaultInt(opts.MaxSizeMB, 64),
			MaxBackups: defaultInt(opts.MaxBackups, 3),
			MaxAge:     defaultInt(opts.MaxAgeDays, 7),
			Compress:   true,
		}
		out = io.MultiWriter(out, fw)
		closer = fw
	}

	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: opts.Level})
	return slog.New(h), closer, nil
}

// ParseLevel maps debug, info, warn and error (any case) to a level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
