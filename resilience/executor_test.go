package resilience

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/opguard/audit"
	"github.com/jonwraymond/opguard/auth"
	"github.com/jonwraymond/opguard/fault"
	"github.com/jonwraymond/opguard/observe"
)

type executorFixture struct {
	exec  *Executor
	sink  *audit.MemorySink
	wait  *fakeWait
	calls atomic.Int32
}

func newExecutorFixture(t *testing.T, opts ...ExecutorOption) *executorFixture {
	t.Helper()
	f := &executorFixture{
		sink: audit.NewMemorySink(),
		wait: &fakeWait{},
	}
	base := []ExecutorOption{
		WithRetry(NewRetry(RetryConfig{Wait: f.wait.Wait})),
		WithAuditor(audit.NewLogger(f.sink)),
		WithClock(func() time.Time { return epoch }),
		WithDefaultPolicy(testPolicy()),
	}
	f.exec = NewExecutor(append(base, opts...)...)
	return f
}

func (f *executorFixture) op(err error) Operation {
	return func(context.Context) (any, error) {
		f.calls.Add(1)
		if err != nil {
			return nil, err
		}
		return "ok", nil
	}
}

func opContext() context.Context {
	return observe.WithOperation(context.Background(), observe.OperationMeta{Namespace: "billing", Name: "charge"})
}

func TestExecutor_Success(t *testing.T) {
	f := newExecutorFixture(t)

	out := f.exec.Do(opContext(), "client-1", f.op(nil))

	assert.True(t, out.OK())
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, "ok", out.Value)
	assert.Equal(t, 1, out.Attempts)
	assert.Nil(t, out.Response)
	assert.Nil(t, out.Record)
	assert.Zero(t, f.sink.Len(), "successes are not audited by default")
}

func TestExecutor_SuccessAudit(t *testing.T) {
	f := newExecutorFixture(t, WithSuccessAudit(true))

	f.exec.Do(opContext(), "client-1", f.op(nil))

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventDataAccess, events[0].Type)
	assert.Equal(t, audit.OutcomeSuccess, events[0].Outcome)
	assert.Equal(t, "billing", events[0].Resource)
	assert.Equal(t, "charge", events[0].Action)
}

func TestExecutor_ExhaustedExternalFailure(t *testing.T) {
	f := newExecutorFixture(t)

	out := f.exec.Do(opContext(), "client-1", f.op(fault.ExternalService("payments", "connection refused")))

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.wait.Delays())
	assert.ErrorIs(t, out.Err, ErrMaxRetriesExceeded)

	require.NotNil(t, out.Record)
	assert.Equal(t, fault.KindExternalService, out.Record.Kind())
	require.NotNil(t, out.Response)
	assert.Equal(t, http.StatusServiceUnavailable, out.Response.HTTPStatus())
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", out.Response.Error.Code)
	assert.Equal(t, out.Record.ID(), out.Response.Error.ID)
	assert.NotContains(t, out.Response.Error.Message, "connection refused")

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventDataAccess, events[0].Type)
	assert.Equal(t, audit.OutcomeFailure, events[0].Outcome)
	assert.Equal(t, out.Record.ID(), events[0].Details["error_id"])
	assert.Equal(t, "client-1", events[0].Details["client_id"])
}

func TestExecutor_ValidationNotRetried(t *testing.T) {
	f := newExecutorFixture(t)

	out := f.exec.Do(opContext(), "client-1", f.op(fault.FieldError("amount", "must be positive")))

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Empty(t, f.wait.Delays())

	require.NotNil(t, out.Response)
	assert.Equal(t, http.StatusBadRequest, out.Response.HTTPStatus())
	assert.Equal(t, "VALIDATION_ERROR", out.Response.Error.Code)
	assert.Equal(t, "validation failed", out.Response.Error.Message)
	assert.Equal(t, map[string]any{"amount": "must be positive"}, out.Response.Error.Details)
}

func TestExecutor_AuthenticationFailureIsAudited(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := auth.WithIdentity(opContext(), &auth.Identity{Principal: "mallory"})

	out := f.exec.Do(ctx, "client-1", f.op(auth.ErrInvalidCredentials))

	require.NotNil(t, out.Response)
	assert.Equal(t, http.StatusUnauthorized, out.Response.HTTPStatus())
	assert.Equal(t, "Authentication failed. Please check your credentials.", out.Response.Error.Message)
	assert.Empty(t, out.Response.Error.Details)
	assert.Equal(t, 1, out.Attempts)

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventAuthFailure, events[0].Type)
	assert.Equal(t, "mallory", events[0].Actor)
}

func TestExecutor_RateLimitShortCircuits(t *testing.T) {
	rl := newTestLimiter(t, 1, 10*time.Second)
	f := newExecutorFixture(t, WithRateLimiter(rl))

	first := f.exec.Do(opContext(), "client-1", f.op(nil))
	require.True(t, first.OK())

	out := f.exec.Do(opContext(), "client-1", f.op(nil))

	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, int32(1), f.calls.Load(), "rejected call never reaches the operation")
	assert.Zero(t, out.Attempts)
	assert.ErrorIs(t, out.Err, ErrRateLimitExceeded)
	assert.Nil(t, out.Record)
	require.NotNil(t, out.Response)
	assert.Equal(t, http.StatusTooManyRequests, out.Response.HTTPStatus())
	assert.Equal(t, fault.CodeRateLimited, out.Response.Error.Code)
	assert.Equal(t, 10, out.Response.Error.Details["retry_after_seconds"])
	assert.True(t, strings.HasPrefix(out.Response.Error.ID, "error_20240101_"))

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventSecurityAlert, events[0].Type)
	assert.Equal(t, audit.OutcomeRejected, events[0].Outcome)

	other := f.exec.Do(opContext(), "client-2", f.op(nil))
	assert.True(t, other.OK())
}

func TestExecutor_BulkheadFullRejects(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	require.NoError(t, b.Acquire(context.Background()))
	f := newExecutorFixture(t, WithBulkhead(b))

	out := f.exec.Do(opContext(), "client-1", f.op(nil))

	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Err, ErrBulkheadFull)
	require.NotNil(t, out.Response)
	assert.Equal(t, fault.CodeCapacityExceeded, out.Response.Error.Code)
	assert.Equal(t, http.StatusServiceUnavailable, out.Response.HTTPStatus())
	assert.Nil(t, out.Response.Error.Details)
	assert.Zero(t, f.calls.Load())

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventDataAccess, events[0].Type)
	assert.Equal(t, audit.OutcomeRejected, events[0].Outcome)
	assert.Equal(t, ErrBulkheadFull.Error(), events[0].Details["reason"])
}

func TestExecutor_Cancelled(t *testing.T) {
	f := newExecutorFixture(t)
	ctx, cancel := context.WithCancel(opContext())
	cancel()

	out := f.exec.Do(ctx, "client-1", f.op(nil))

	assert.Equal(t, StatusCancelled, out.Status)
	assert.Zero(t, out.Attempts)
	assert.ErrorIs(t, out.Err, ErrCancelled)
	require.NotNil(t, out.Response)
	assert.Equal(t, fault.StatusClientClosedRequest, out.Response.HTTPStatus())
	assert.Equal(t, fault.CodeCancelled, out.Response.Error.Code)

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeCancelled, events[0].Outcome)
}

func TestExecutor_InvalidPolicy(t *testing.T) {
	f := newExecutorFixture(t)

	out := f.exec.Invoke(opContext(), "client-1", f.op(nil), Policy{MaxAttempts: 0})

	assert.Equal(t, StatusFailed, out.Status)
	assert.Zero(t, f.calls.Load())
	assert.ErrorIs(t, out.Err, ErrInvalidPolicy)
	require.NotNil(t, out.Record)
	assert.Equal(t, fault.KindSystem, out.Record.Kind())
	assert.Equal(t, fault.SeverityHigh, out.Record.Severity())
	assert.Equal(t, "INTERNAL_ERROR", out.Response.Error.Code)
}

func TestExecutor_SystemFailureHidesInternals(t *testing.T) {
	f := newExecutorFixture(t)

	out := f.exec.Do(opContext(), "client-1", f.op(errors.New("dial tcp db:5432: password authentication failed")))

	require.NotNil(t, out.Response)
	body, err := out.Response.JSON()
	require.NoError(t, err)
	assert.NotContains(t, string(body), "password")
	assert.NotContains(t, string(body), "dial tcp")
	assert.Equal(t, "A serious error occurred. Please contact support.", out.Response.Error.Message)

	require.NotNil(t, out.Record)
	assert.Equal(t, "dial tcp db:5432: password authentication failed", out.Record.Context()["error"])
}

func TestExecutor_PanicBecomesCriticalSystemFailure(t *testing.T) {
	f := newExecutorFixture(t)

	out := f.exec.Do(opContext(), "client-1", func(context.Context) (any, error) {
		panic("nil map")
	})

	assert.Equal(t, StatusFailed, out.Status)
	require.NotNil(t, out.Record)
	assert.Equal(t, fault.KindSystem, out.Record.Kind())
	assert.Equal(t, fault.SeverityCritical, out.Record.Severity())
	assert.Equal(t, "nil map", out.Record.Context()["panic"])
}

func TestExecutor_TimeoutIsRetried(t *testing.T) {
	f := newExecutorFixture(t, WithTimeout(5*time.Millisecond))

	out := f.exec.Do(opContext(), "client-1", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.ErrorIs(t, out.Err, ErrTimeout)
}

func TestExecutor_AuditSinkFailureDoesNotChangeOutcome(t *testing.T) {
	exec := NewExecutor(
		WithRetry(NewRetry(RetryConfig{Wait: (&fakeWait{}).Wait})),
		WithAuditor(audit.NewLogger(audit.MultiSink{brokenSink{}})),
	)

	out := exec.Invoke(opContext(), "client-1", func(context.Context) (any, error) {
		return nil, fault.BusinessLogic("insufficient funds")
	}, testPolicy())

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "insufficient funds", out.Response.Error.Message)
	assert.Equal(t, http.StatusUnprocessableEntity, out.Response.HTTPStatus())
}

type brokenSink struct{}

func (brokenSink) Write(context.Context, audit.Event) error { return errors.New("sink down") }
func (brokenSink) Close() error                             { return nil }

func TestExecutor_Instrumentation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	instr := observe.NewInstrumentation(observe.NewTracer(tp.Tracer("test")), nil, nil)
	f := newExecutorFixture(t, WithInstrumentation(instr))

	f.exec.Do(opContext(), "client-1", f.op(fault.ExternalService("payments", "down")))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "opguard.invoke.billing.charge", spans[0].Name())

	var outcome string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == attribute.Key("invoke.outcome") {
			outcome = kv.Value.AsString()
		}
	}
	assert.Equal(t, "failed", outcome)

	retries := 0
	for _, ev := range spans[0].Events() {
		if ev.Name == "retry" {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "rejected", StatusRejected.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
