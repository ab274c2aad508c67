// Package logging holds the process-wide operational logger. The level
// is adjustable at runtime so a cluster-wide log-level message can turn
// debug logging on and off without restarting nodes.
package logging

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	opLogger.Store(logger)
}

// Op returns the operational logger for daemon/infrastructure logs.
// This is separate from per-invocation loggers, which carry a marker.
func Op() *slog.Logger {
	return opLogger.Load()
}

// Marker returns a logger scoped to one invocation. The marker ties all
// log lines of a request together across the dispatch and callback paths.
func Marker(marker string) *slog.Logger {
	return opLogger.Load().With("marker", marker)
}

// SetLevel changes the log level for the operational logger.
// Valid levels: slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetLevelFromString sets the log level from a string and reports
// whether the value was recognized. Unknown values leave the level
// unchanged. Valid values: "debug", "info", "warn", "error".
func SetLevelFromString(level string) bool {
	switch level {
	case "debug", "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "info", "INFO":
		logLevel.Set(slog.LevelInfo)
	case "warn", "WARN", "warning", "WARNING":
		logLevel.Set(slog.LevelWarn)
	case "error", "ERROR":
		logLevel.Set(slog.LevelError)
	default:
		return false
	}
	return true
}

// LevelString returns the current level as its canonical lowercase name.
func LevelString() string {
	switch {
	case logLevel.Level() <= slog.LevelDebug:
		return "debug"
	case logLevel.Level() <= slog.LevelInfo:
		return "info"
	case logLevel.Level() <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}
