package tiercache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with tiercache-specific context.
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

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithTier adds a tier field to the logger.
func (l *Logger) WithTier(t Tier) *Logger {
	return &Logger{
		Logger: l.Logger.With("tier", t.String()),
	}
}

// WithKey adds a key field to the logger.
func (l *Logger) WithKey(key string) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key),
	}
}

// LogGet logs a lookup. tier is only meaningful when hit is true.
func (l *Logger) LogGet(ctx context.Context, key string, t Tier, hit bool, err error) {
	switch {
	case err != nil:
		l.WarnContext(ctx, "get failed",
			"key", key,
			"error", err,
		)
	case hit:
		l.DebugContext(ctx, "get hit",
			"key", key,
			"tier", t.String(),
		)
	default:
		l.DebugContext(ctx, "get miss",
			"key", key,
		)
	}
}

// LogSet logs a fan-out write.
func (l *Logger) LogSet(ctx context.Context, key string, err error) {
	if err != nil {
		l.WarnContext(ctx, "set completed with failures",
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "set completed",
			"key", key,
		)
	}
}

// LogPromotion logs a copy of key from a slower tier into a faster one.
func (l *Logger) LogPromotion(ctx context.Context, key string, from, to Tier, err error) {
	if err != nil {
		l.WarnContext(ctx, "promotion failed",
			"key", key,
			"from", from.String(),
			"to", to.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "promotion completed",
			"key", key,
			"from", from.String(),
			"to", to.String(),
		)
	}
}

// LogCorruption logs an unreadable disk entry that was removed.
func (l *Logger) LogCorruption(ctx context.Context, t Tier, key string) {
	l.WarnContext(ctx, "corrupted entry removed",
		"tier", t.String(),
		"key", key,
	)
}

// LogEviction logs a capacity eviction.
func (l *Logger) LogEviction(ctx context.Context, t Tier, key string) {
	l.DebugContext(ctx, "entry evicted",
		"tier", t.String(),
		"key", key,
	)
}

// LogRecovery logs the startup scan of a disk tier.
func (l *Logger) LogRecovery(ctx context.Context, t Tier, loaded, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "tier recovery failed",
			"tier", t.String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "tier recovery completed",
			"tier", t.String(),
			"loaded", loaded,
			"removed", removed,
		)
	}
}
