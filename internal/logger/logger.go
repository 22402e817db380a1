// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// taskIDKey is the context key for the task currently being processed.
type taskIDKey struct{}

// New creates a new structured JSON logger.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// WithTaskID returns a new context carrying the given task ID.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, taskID)
}

// TaskIDFromContext extracts the task ID from the context.
func TaskIDFromContext(ctx context.Context) string {
	if v := ctx.Value(taskIDKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// FromContext returns a logger with context fields (task ID) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if taskID := TaskIDFromContext(ctx); taskID != "" {
		return base.With("task_id", taskID)
	}
	return base
}
