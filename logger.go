package spargo

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with solver-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that writes JSON logs to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable logs to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// ParseLevel maps debug, info, warn and error to slog levels.
// Unknown names map to info.
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

// WithSlot adds a slot field to the logger.
func (l *Logger) WithSlot(slot int) *Logger {
	return &Logger{
		Logger: l.Logger.With("slot", slot),
	}
}

// LogLaunch logs a finished index launch.
func (l *Logger) LogLaunch(ctx context.Context, task string, points int, run time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "launch failed",
			"task", task,
			"points", points,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "launch completed",
			"task", task,
			"points", points,
			"run", run,
		)
	}
}

// LogIteration logs a resolved solver iteration.
func (l *Logger) LogIteration(ctx context.Context, iteration int, residual float64) {
	l.DebugContext(ctx, "iteration",
		"iteration", iteration,
		"residual_norm_squared", residual,
	)
}

// LogCheckpoint logs a checkpoint save or restore.
func (l *Logger) LogCheckpoint(ctx context.Context, name string, iteration int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"name", name,
			"iteration", iteration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checkpoint",
			"name", name,
			"iteration", iteration,
		)
	}
}
