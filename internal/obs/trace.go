package obs

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HeaderTraceID carries the request's trace id back to HTTP callers.
const HeaderTraceID = "X-Trace-Id"

// TraceID returns the hex trace id of the span in ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// TraceFields returns trace_id, span_id and sampled for the span in ctx, or nil.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
		zap.Bool("sampled", sc.IsSampled()),
	}
}

// WithTrace scopes log to the span in ctx so delivery logs can be joined with their traces.
func WithTrace(ctx context.Context, log *zap.Logger) *zap.Logger {
	if log == nil {
		return nil
	}
	fields := TraceFields(ctx)
	if fields == nil {
		return log
	}
	return log.With(fields...)
}
