// Package logging builds the service's slog loggers and the small helpers
// used to tag them per request, run and component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys shared across packages.
const (
	KeyRequestID = "request_id"
	KeyRunID     = "run_id"
	KeyJobID     = "job_id"
	KeyComponent = "component"
)

// NewLogger writes JSON to stdout at the named level (debug, info, warn,
// error). Debug also records the source location.
func NewLogger(level string) *slog.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := ParseLevel(level)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
}

// ParseLevel falls back to info for anything it does not recognise.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Discard drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns logger, or Discard when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

func with(logger *slog.Logger, key, value string) *slog.Logger {
	if value == "" {
		return logger
	}
	return logger.With(key, value)
}

func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return with(logger, KeyRequestID, requestID)
}

func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return with(logger, KeyComponent, component)
}

func WithJobID(logger *slog.Logger, jobID string) *slog.Logger {
	return with(logger, KeyJobID, jobID)
}

func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return with(logger, KeyRunID, runID)
}

// SanitizeToken keeps the first and last four characters of a secret.
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizePath replaces the home directory prefix with ~.
func SanitizePath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home || strings.HasPrefix(path, home+string(os.PathSeparator)) {
		return "~" + path[len(home):]
	}
	return path
}
