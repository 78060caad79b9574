// Package logging configures log/slog for the daemon.
//
// Loggers pick up two kinds of correlation from a context: the chi request ID
// for ops endpoint calls, and the task ID assigned by the dispatcher to each
// file processing run.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const taskIDKey ctxKey = iota

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithTask returns a context carrying the processing task ID.
func WithTask(ctx context.Context, taskID uint64) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// TaskID returns the task ID stored by WithTask.
func TaskID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(taskIDKey).(uint64)
	return id, ok
}

// FromContext returns the default logger enriched with whatever correlation
// IDs ctx carries.
//
// Usage:
//
//	logger := logging.FromContext(ctx)
//	logger.Info("file archived", "path", dst)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id, ok := TaskID(ctx); ok {
		logger = logger.With("task_id", id)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	fileLogger := logging.WithFields(ctx, "file", name)
//	fileLogger.Info("parsed", "rows", n)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
