// Package logging - Process-wide structured logger setup.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init creates and sets the package-level default slog logger writing text
// records to stderr.
//
// Arguments:
//   - level: The minimum level to emit.
func Init(level slog.Level) {
	InitWriter(os.Stderr, level, false)
}

// InitWriter sets the default slog logger on an arbitrary writer. When json is
// true records are emitted as JSON, otherwise as logfmt-style text.
//
// Arguments:
//   - w: Destination of log records.
//   - level: The minimum level to emit.
//   - json: Whether to use the JSON handler.
func InitWriter(w io.Writer, level slog.Level, json bool) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to slog.Level.
// Unknown strings default to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
