package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{ name string }

var (
	loggerKey    = &ctxKey{"logger"}
	requestIDKey = &ctxKey{"request_id"}
)

// WithLogger binds l to ctx for the rest of the request.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithRequestID records the request ID that L attaches to every record.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// L returns the logger bound to ctx, falling back to slog.Default, with
// the request ID attached when there is one.
func L(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(loggerKey).(*slog.Logger)
	if !ok || l == nil {
		l = slog.Default()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return l.With("request_id", id)
	}
	return l
}
