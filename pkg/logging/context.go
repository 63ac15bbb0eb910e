package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

// WithContext stores a request scoped logger for handlers further down.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the logger stored by WithContext. Outside a request
// it falls back to slog.Default tagged with the active trace id, if any.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return WithTrace(ctx, slog.Default())
}

// WithTrace adds the trace id of the span in ctx to log.
func WithTrace(ctx context.Context, log *slog.Logger) *slog.Logger {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return log.With(TraceID(sc.TraceID().String()))
	}
	return log
}
