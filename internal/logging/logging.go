// Package logging sets up the process-wide slog logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds a slog logger from the configured level and format ("json" or
// "text") and installs it as the default.
func Setup(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// ParseLevel converts a level string to slog.Level. Unknown strings default
// to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Err wraps an error as a slog attribute.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
