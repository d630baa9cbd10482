package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the phonebridge tracer.
const tracerName = "github.com/MrWong99/phonebridge"

// AttrCallID is the span attribute carrying the call id.
const AttrCallID = attribute.Key("phonebridge.call_id")

// Tracer returns the package-level [trace.Tracer]. It uses the globally
// registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartCallSpan starts the root span of a call. Work done for the call
// (transcriptions, summary, persistence) hangs off the returned context.
func StartCallSpan(ctx context.Context, callID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "call",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(AttrCallID.String(callID)),
	)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithTrace returns l with trace_id and span_id from the span in ctx. A nil l
// means the default logger; without a valid span l is returned unchanged.
func WithTrace(ctx context.Context, l *slog.Logger) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}
	return l.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

// Logger is [WithTrace] on the default logger.
func Logger(ctx context.Context) *slog.Logger {
	return WithTrace(ctx, nil)
}

// CallLogger returns base (nil for the default logger) with the trace context
// of ctx and the call id attached.
func CallLogger(ctx context.Context, base *slog.Logger, callID string) *slog.Logger {
	return WithTrace(ctx, base).With(slog.String("call_id", callID))
}
