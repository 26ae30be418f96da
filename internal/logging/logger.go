// Package logging provides slog setup helpers for the dhcp4conn demo CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// levelNames maps every recognized log-level string to its slog.Level. Both
// ParseLevel and IsValidLevel are built on this table so the set of
// recognized spellings ("trace"/"debug", "warn"/"warning", ...) lives in one
// place.
var levelNames = map[string]slog.Level{
	"":        slog.LevelInfo,
	"trace":   slog.LevelDebug,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel converts a string level to slog.Level, defaulting to
// slog.LevelInfo for anything it doesn't recognize.
func ParseLevel(level string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// IsValidLevel reports whether level is one of the spellings ParseLevel
// recognizes. clientconfig.Load uses this to reject a typo'd log_level at
// config-load time rather than silently falling back to info.
func IsValidLevel(level string) bool {
	_, ok := levelNames[strings.ToLower(level)]
	return ok
}

// Setup initializes the default slog logger with the given level and output.
func Setup(level string, output io.Writer) *slog.Logger {
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	handler := slog.NewJSONHandler(output, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
