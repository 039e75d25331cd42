// Package logging builds the service's main structured logger, grounded
// directly on the teacher's vendored telemetry.NewLogger helper. This is
// the slog sink for ordinary service logging; internal/asset/events
// keeps its own zerolog-based audit trail separate, per SPEC_FULL.md's
// ambient-stack split.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a structured logger writing to out. format is "json" or
// "text"; level is one of debug/info/warn/error.
func New(out io.Writer, format, level string) *slog.Logger {
	if out == nil {
		out = os.Stdout
	}

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}
