// Package logging builds the slog loggers used by the marleyaccel binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Level is one of the user-facing log levels.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// ParseLevel converts a string to a Level
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

// SlogLevel maps l onto slog. Unknown levels map to info.
func (l Level) SlogLevel() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// New creates a text logger writing to w at the given level.
func New(level Level, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
