package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Instrumentation bundles the tracer, metrics and logger used to observe
// invocations.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: instrumentation never fails an invocation.
type Instrumentation struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewInstrumentation creates an Instrumentation from explicit components.
// Nil components are replaced with no-op implementations.
func NewInstrumentation(tracer Tracer, metrics Metrics, logger Logger) *Instrumentation {
	if tracer == nil {
		tracer = NoopTracer()
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Instrumentation{tracer: tracer, metrics: metrics, logger: logger}
}

// InstrumentationFromObserver creates an Instrumentation from an Observer.
func InstrumentationFromObserver(obs Observer) (*Instrumentation, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewInstrumentation(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// NoopInstrumentation returns an Instrumentation that records nothing.
func NoopInstrumentation() *Instrumentation {
	return NewInstrumentation(nil, nil, nil)
}

// Logger returns the underlying logger.
func (in *Instrumentation) Logger() Logger {
	return in.logger
}

// Span tracks one invocation from start to outcome.
type Span struct {
	in       *Instrumentation
	ctx      context.Context
	span     trace.Span
	meta     OperationMeta
	clientID string
	start    time.Time
	logger   Logger
}

// Begin starts observing an invocation. The returned context carries the
// span and should be passed to the operation.
func (in *Instrumentation) Begin(ctx context.Context, meta OperationMeta, clientID string) (context.Context, *Span) {
	ctx, span := in.tracer.StartSpan(ctx, meta, clientID)
	return ctx, &Span{
		in:       in,
		ctx:      ctx,
		span:     span,
		meta:     meta,
		clientID: clientID,
		start:    time.Now(),
		logger:   in.logger.WithOperation(meta).WithFields(Field{Key: "client_id", Value: clientID}),
	}
}

// Logger returns a logger tagged with the invocation's operation and client.
func (s *Span) Logger() Logger {
	return s.logger
}

// Retry records a scheduled retry.
func (s *Span) Retry(attempt int, delay time.Duration, err error) {
	s.in.metrics.RecordRetry(s.ctx, s.meta, delay)
	AddRetryEvent(s.ctx, attempt, delay.Milliseconds(), err)
	fields := []Field{
		{Key: "attempt", Value: attempt},
		{Key: "delay_ms", Value: delay.Milliseconds()},
	}
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
	}
	s.logger.Debug(s.ctx, "retrying operation", fields...)
}

// Rejected ends the invocation as refused by the rate limiter.
func (s *Span) Rejected() {
	s.in.metrics.RecordRejection(s.ctx, s.meta)
	s.End("rejected", 0, nil)
}

// End records the outcome and ends the span.
func (s *Span) End(outcome string, attempts int, err error) {
	duration := time.Since(s.start)
	s.in.tracer.EndSpan(s.span, outcome, attempts, err)
	s.in.metrics.RecordInvocation(s.ctx, s.meta, outcome, attempts, duration)

	fields := []Field{
		{Key: "outcome", Value: outcome},
		{Key: "attempts", Value: attempts},
		{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
	}
	if err == nil {
		s.logger.Debug(s.ctx, "invocation finished", fields...)
		return
	}
	s.logger.Debug(s.ctx, "invocation failed", append(fields, Field{Key: "error", Value: err.Error()})...)
}
