// Package log provides leveled, structured logging for loom components.
package log

import (
	"strings"
)

// Level represents the minimum log level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

var defaultLevel = LevelWarn

// SetDefaultLevel sets the default log level.
func SetDefaultLevel(level Level) {
	defaultLevel = level
}

// GetDefaultLevel returns the default log level.
func GetDefaultLevel() Level {
	return defaultLevel
}

// Logger is the logging interface used throughout loom. It aligns with the
// slog calling convention so adapters for other libraries stay trivial.
type Logger interface {
	// Debug logs a message at debug level with optional key-value pairs.
	Debug(msg string, args ...any)

	// Info logs a message at info level with optional key-value pairs.
	Info(msg string, args ...any)

	// Warn logs a message at warn level with optional key-value pairs.
	Warn(msg string, args ...any)

	// Error logs a message at error level with optional key-value pairs.
	Error(msg string, args ...any)

	// With returns a Logger that includes the given attributes in each
	// output operation.
	With(args ...any) Logger
}

// LevelFromString converts a string to a Level. Unknown values fall back to
// the default level.
func LevelFromString(value string) Level {
	switch strings.ToLower(value) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return defaultLevel
	}
}
