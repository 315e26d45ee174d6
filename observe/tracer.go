package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/opguard/fault"
)

// Tracer wraps OpenTelemetry tracing with one span per invocation.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for an invocation.
	StartSpan(ctx context.Context, meta OperationMeta, clientID string) (context.Context, trace.Span)

	// EndSpan records the outcome and ends the span.
	EndSpan(span trace.Span, outcome string, attempts int, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OperationMeta, clientID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("operation.id", meta.ID()),
		attribute.String("operation.name", meta.Name),
		attribute.String("client.id", clientID),
	}
	if meta.Namespace != "" {
		attrs = append(attrs, attribute.String("operation.namespace", meta.Namespace))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, outcome string, attempts int, err error) {
	span.SetAttributes(
		attribute.String("invoke.outcome", outcome),
		attribute.Int("invoke.attempts", attempts),
	)
	if err != nil {
		if kind, ok := fault.KindOf(err); ok {
			span.SetAttributes(attribute.String("error.kind", kind.String()))
		}
		span.SetStatus(codes.Error, outcome)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddRetryEvent records a retry on the span in ctx, if any.
func AddRetryEvent(ctx context.Context, attempt int, delayMs int64, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int("retry.attempt", attempt),
		attribute.Int64("retry.delay_ms", delayMs),
	}
	if kind, ok := fault.KindOf(err); ok {
		attrs = append(attrs, attribute.String("retry.error_kind", kind.String()))
	}
	span.AddEvent("retry", trace.WithAttributes(attrs...))
}

type noopTracer struct {
	noop trace.Tracer
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OperationMeta, _ string) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ string, _ int, _ error) {
	span.End()
}
