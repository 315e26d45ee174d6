package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/opguard/fault"
)

func newRecordingTracer() (Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracer(tp.Tracer("test")), recorder
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracer_SpanAttributes(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), OperationMeta{Namespace: "gh", Name: "issue"}, "client-9")
	tracer.EndSpan(span, "succeeded", 1, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "opguard.invoke.gh.issue", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	v, ok := attrValue(spans[0].Attributes(), "client.id")
	require.True(t, ok)
	assert.Equal(t, "client-9", v.AsString())
	v, ok = attrValue(spans[0].Attributes(), "invoke.outcome")
	require.True(t, ok)
	assert.Equal(t, "succeeded", v.AsString())
}

func TestTracer_ErrorStatus(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), OperationMeta{Name: "op"}, "c")
	tracer.EndSpan(span, "failed", 3, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.NotEmpty(t, spans[0].Events(), "error recorded as event")
}

func TestTracer_ErrorKindAttribute(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), OperationMeta{Name: "op"}, "c")
	tracer.EndSpan(span, "failed", 1, fault.ExternalService("ledger", "timeout"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	v, ok := attrValue(spans[0].Attributes(), "error.kind")
	require.True(t, ok)
	assert.Equal(t, "external_service", v.AsString())
}

func TestInstrumentation_RetryEvents(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	in := NewInstrumentation(tracer, nil, nil)

	_, span := in.Begin(context.Background(), OperationMeta{Name: "op"}, "c")
	span.Retry(1, 100*time.Millisecond, errors.New("e1"))
	span.Retry(2, 200*time.Millisecond, fault.ExternalService("ledger", "reset"))
	span.End("succeeded", 3, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	var retries []sdktrace.Event
	for _, ev := range spans[0].Events() {
		if ev.Name == "retry" {
			retries = append(retries, ev)
		}
	}
	require.Len(t, retries, 2)
	_, ok := attrValue(retries[0].Attributes, "retry.error_kind")
	assert.False(t, ok, "plain errors carry no kind")
	v, ok := attrValue(retries[1].Attributes, "retry.error_kind")
	require.True(t, ok)
	assert.Equal(t, "external_service", v.AsString())
}

func TestInstrumentation_Rejected(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	m, reader := newTestMetrics(t)
	in := NewInstrumentation(tracer, m, nil)

	_, span := in.Begin(context.Background(), OperationMeta{Name: "op"}, "c")
	span.Rejected()

	require.Len(t, recorder.Ended(), 1)
	rm := collect(t, reader)
	assert.NotNil(t, findMetric(rm, "opguard.invoke.rejected"))
}

func TestNoopInstrumentation(t *testing.T) {
	in := NoopInstrumentation()
	assert.NotPanics(t, func() {
		_, span := in.Begin(context.Background(), OperationMeta{Name: "op"}, "c")
		span.Retry(1, time.Millisecond, nil)
		span.End("failed", 1, errors.New("x"))
	})
}
