package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records envelope metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordInvocation records a finished invocation.
	RecordInvocation(ctx context.Context, meta OperationMeta, outcome string, attempts int, duration time.Duration)

	// RecordRejection records an invocation refused by the rate limiter.
	RecordRejection(ctx context.Context, meta OperationMeta)

	// RecordRetry records a backoff before another attempt.
	RecordRetry(ctx context.Context, meta OperationMeta, delay time.Duration)
}

type metricsImpl struct {
	total     metric.Int64Counter
	rejected  metric.Int64Counter
	retries   metric.Int64Counter
	attempts  metric.Int64Histogram
	duration  metric.Float64Histogram
	backoffMs metric.Float64Histogram
}

// NewMetrics creates the envelope instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	total, err := meter.Int64Counter(
		"opguard.invoke.total",
		metric.WithDescription("Total number of invocations by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	rejected, err := meter.Int64Counter(
		"opguard.invoke.rejected",
		metric.WithDescription("Invocations rejected by the rate limiter"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"opguard.invoke.retries",
		metric.WithDescription("Retries scheduled after a failed attempt"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	attempts, err := meter.Int64Histogram(
		"opguard.invoke.attempts",
		metric.WithDescription("Attempts used per invocation"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"opguard.invoke.duration_ms",
		metric.WithDescription("Invocation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	backoff, err := meter.Float64Histogram(
		"opguard.retry.backoff_ms",
		metric.WithDescription("Backoff delay before a retry in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		total:     total,
		rejected:  rejected,
		retries:   retries,
		attempts:  attempts,
		duration:  duration,
		backoffMs: backoff,
	}, nil
}

func operationAttrs(meta OperationMeta) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("operation.id", meta.ID())}
	if meta.Namespace != "" {
		attrs = append(attrs, attribute.String("operation.namespace", meta.Namespace))
	}
	return attrs
}

func (m *metricsImpl) RecordInvocation(ctx context.Context, meta OperationMeta, outcome string, attempts int, duration time.Duration) {
	attrs := append(operationAttrs(meta), attribute.String("outcome", outcome))
	opt := metric.WithAttributes(attrs...)

	m.total.Add(ctx, 1, opt)
	if attempts > 0 {
		m.attempts.Record(ctx, int64(attempts), opt)
	}
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordRejection(ctx context.Context, meta OperationMeta) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(operationAttrs(meta)...))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, meta OperationMeta, delay time.Duration) {
	opt := metric.WithAttributes(operationAttrs(meta)...)
	m.retries.Add(ctx, 1, opt)
	m.backoffMs.Record(ctx, float64(delay.Microseconds())/1000, opt)
}

type noopMetrics struct{}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordInvocation(context.Context, OperationMeta, string, int, time.Duration) {}
func (noopMetrics) RecordRejection(context.Context, OperationMeta)                              {}
func (noopMetrics) RecordRetry(context.Context, OperationMeta, time.Duration)                   {}
