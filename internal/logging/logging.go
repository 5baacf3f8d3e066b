// Package logging configures the process logger and carries request-scoped
// loggers through context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type loggerKey struct{}

// ParseLevel maps debug|info|warn|error to a slog level. Unknown values
// return fallback.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// New builds a logger for mode. prod writes JSON at INFO, every other mode
// writes text at DEBUG. A non-empty level overrides the mode default.
func New(w io.Writer, mode, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if mode == "prod" {
		opts := &slog.HandlerOptions{Level: ParseLevel(level, slog.LevelInfo)}
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level, slog.LevelDebug)}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup installs the logger for mode as the slog default and returns it.
func Setup(mode, level string) *slog.Logger {
	logger := New(os.Stderr, mode, level)
	slog.SetDefault(logger)
	return logger
}

// ToContext attaches l to ctx.
func ToContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger attached to ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// With returns ctx carrying the current logger extended with args.
func With(ctx context.Context, args ...any) context.Context {
	return ToContext(ctx, FromContext(ctx).With(args...))
}
