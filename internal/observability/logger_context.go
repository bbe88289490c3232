// Package observability holds the cross-layer plumbing the adapters
// share: request-scoped loggers carried on the context and the ring of
// recent executions served by the inspection endpoint.
package observability

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
)

// ContextWithLogger hangs a logger on the context. The request
// middleware does this once per request with request_id and trace ids
// already attached, so deeper layers log correlated lines for free.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	if lg == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, lg)
}

// LoggerFromContext returns the context's logger, falling back to
// slog.Default so callers never need a nil check.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if lg, ok := ctx.Value(loggerKey).(*slog.Logger); ok && lg != nil {
		return lg
	}
	return slog.Default()
}

// ContextWithRequestID records the request id itself, separate from the
// logger, for code that forwards it out of process: the queue producer
// copies it onto parse-task records.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}
