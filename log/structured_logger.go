package log

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// StructuredLogger implements the Logger interface using slog with a tinted
// handler when stdout is a terminal.
type StructuredLogger struct {
	logger *slog.Logger
}

// New returns a new StructuredLogger writing to stdout at the given level.
func New(level Level) *StructuredLogger {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
		TimeFormat: time.Kitchen,
		Level:      slog.Level(level),
	})
	return &StructuredLogger{logger: slog.New(handler)}
}

// NewWithLogger wraps an existing slog.Logger.
func NewWithLogger(logger *slog.Logger) *StructuredLogger {
	if logger == nil {
		return New(GetDefaultLevel())
	}
	return &StructuredLogger{logger: logger}
}

func (l *StructuredLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *StructuredLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *StructuredLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *StructuredLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

func (l *StructuredLogger) With(args ...any) Logger {
	return &StructuredLogger{logger: l.logger.With(args...)}
}
