// Package logging configures the process-wide slog default logger.
//
// Configuration via environment:
//
//	LOG_LEVEL=debug|info|warn|error  (default: info)
//	LOG_FORMAT=text|json             (default: text)
//
// Text output is meant for interactive CLI use; JSON is for log aggregation.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default slog logger according to LOG_LEVEL and
// LOG_FORMAT. Explicit arguments override the environment.
func Setup(level, format string) *slog.Logger {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
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
