package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// LogContext holds structured logging context information.
type LogContext struct {
	CycleID  string
	Source   string
	Identity string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithCycleID adds the poll cycle ID to the context.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	lc := extractLogContext(ctx)
	lc.CycleID = cycleID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithSource adds the source directory being processed to the context.
func WithSource(ctx context.Context, source string) context.Context {
	lc := extractLogContext(ctx)
	lc.Source = source
	return context.WithValue(ctx, logContextKey, lc)
}

// WithIdentity adds the package identity being processed to the context.
func WithIdentity(ctx context.Context, identity string) context.Context {
	lc := extractLogContext(ctx)
	lc.Identity = identity
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// getLogAttrs returns slog attributes from the context's LogContext.
func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}

	if lc.CycleID != "" {
		attrs = append(attrs, slog.String("cycle_id", lc.CycleID))
	}
	if lc.Source != "" {
		attrs = append(attrs, slog.String("source", lc.Source))
	}
	if lc.Identity != "" {
		attrs = append(attrs, slog.String("identity", lc.Identity))
	}

	return attrs
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelInfo, msg, attrs)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelWarn, msg, attrs)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelError, msg, attrs)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, slog.LevelDebug, msg, attrs)
}

func logAttrs(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	all := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, level, msg, all...)
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

// ParseLevel maps a configured level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// NewLogger builds the process logger. format is "text" or "json".
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
