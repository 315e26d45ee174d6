package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/opguard/audit"
	"github.com/jonwraymond/opguard/fault"
	"github.com/jonwraymond/opguard/observe"
)

// Status is the terminal state of an invocation.
type Status int

const (
	StatusSucceeded Status = iota
	StatusRejected
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of Executor.Invoke.
type Outcome struct {
	Status Status

	// Value is the operation's result on success.
	Value any

	// Attempts is the number of times the operation ran.
	Attempts int

	// Err is the raw terminal error, for in-process callers.
	Err error

	// Record is the classified failure. Nil on success and rejection.
	Record *fault.Record

	// Response is the caller-safe envelope. Nil on success.
	Response *fault.Response
}

// OK reports whether the invocation succeeded.
func (o Outcome) OK() bool { return o.Status == StatusSucceeded }

// Executor runs operations inside the resilience envelope:
//
//  1. Rate limiter (rejection short-circuits; the operation never runs)
//  2. Bulkhead
//  3. Retry with backoff, each attempt optionally bounded by a timeout
//  4. On terminal failure: classify, format, log and audit
type Executor struct {
	limiter      *RateLimiter
	bulkhead     *Bulkhead
	timeout      *Timeout
	retry        *Retry
	classifier   *fault.Classifier
	formatter    *fault.Formatter
	auditor      *audit.Logger
	instr        *observe.Instrumentation
	policy       Policy
	now          func() time.Time
	auditSuccess bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new executor. Without options it retries with
// DefaultPolicy and has no rate limiter, bulkhead, timeout or audit sink.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		policy: DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = fault.NewClassifier()
	}
	if e.formatter == nil {
		e.formatter = fault.NewFormatter()
	}
	if e.retry == nil {
		e.retry = NewRetry(RetryConfig{Classifier: e.classifier})
	}
	if e.instr == nil {
		e.instr = observe.NoopInstrumentation()
	}
	return e
}

// WithRateLimiter admits invocations through rl.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.limiter = rl
	}
}

// WithBulkhead caps concurrent invocations with b.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout bounds every attempt by d.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: d})
	}
}

// WithRetry sets the retry handler.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithClassifier sets the classifier used for terminal failures.
func WithClassifier(c *fault.Classifier) ExecutorOption {
	return func(e *Executor) {
		e.classifier = c
	}
}

// WithFormatter sets the response formatter.
func WithFormatter(f *fault.Formatter) ExecutorOption {
	return func(e *Executor) {
		e.formatter = f
	}
}

// WithAuditor sets the audit logger.
func WithAuditor(a *audit.Logger) ExecutorOption {
	return func(e *Executor) {
		e.auditor = a
	}
}

// WithInstrumentation sets tracing, metrics and logging.
func WithInstrumentation(in *observe.Instrumentation) ExecutorOption {
	return func(e *Executor) {
		e.instr = in
	}
}

// WithDefaultPolicy sets the policy used by Do.
func WithDefaultPolicy(p Policy) ExecutorOption {
	return func(e *Executor) {
		e.policy = p
	}
}

// WithClock sets the time source for admission and rejection timestamps.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSuccessAudit records a data.access event for successful invocations
// as well as failures.
func WithSuccessAudit(enabled bool) ExecutorOption {
	return func(e *Executor) {
		e.auditSuccess = enabled
	}
}

// Do runs op with the executor's default policy.
func (e *Executor) Do(ctx context.Context, clientID string, op Operation) Outcome {
	return e.Invoke(ctx, clientID, op, e.policy)
}

// Invoke runs op on behalf of clientID under policy.
//
// The operation's name for telemetry and audit comes from
// observe.OperationFromContext.
func (e *Executor) Invoke(ctx context.Context, clientID string, op Operation, policy Policy) Outcome {
	meta, _ := observe.OperationFromContext(ctx)
	ctx, span := e.instr.Begin(ctx, meta, clientID)

	if err := policy.Validate(); err != nil {
		cfgErr := fault.Configuration("retry_policy", "invalid retry policy").WithCause(err)
		return e.fail(ctx, span, meta, clientID, 0, cfgErr)
	}

	if e.limiter != nil {
		now := e.now()
		if !e.limiter.IsAllowed(clientID, now) {
			return e.reject(ctx, span, meta, clientID, now, e.limiter.RetryAfter(clientID, now), ErrRateLimitExceeded)
		}
	}

	if e.bulkhead != nil {
		if err := e.bulkhead.Acquire(ctx); err != nil {
			if errors.Is(err, ErrBulkheadFull) {
				return e.shed(ctx, span, meta, clientID, e.now())
			}
			return e.fail(ctx, span, meta, clientID, 0, cancelled(0, err))
		}
		defer e.bulkhead.Release()
	}

	run := guard(op)
	if e.timeout != nil {
		run = e.timeout.Wrap(run)
	}

	v, attempts, err := e.retry.run(ctx, run, policy, span.Retry)
	if err != nil {
		return e.fail(ctx, span, meta, clientID, attempts, err)
	}

	span.End(StatusSucceeded.String(), attempts, nil)
	if e.auditSuccess {
		resource, action := auditTarget(meta)
		e.auditor.Record(context.WithoutCancel(ctx), audit.Event{
			Type:     audit.EventDataAccess,
			Resource: resource,
			Action:   action,
			Outcome:  audit.OutcomeSuccess,
			Details:  map[string]any{"client_id": clientID, "attempts": attempts},
		})
	}
	return Outcome{Status: StatusSucceeded, Value: v, Attempts: attempts}
}

func (e *Executor) reject(ctx context.Context, span *observe.Span, meta observe.OperationMeta, clientID string, now time.Time, retryAfter time.Duration, reason error) Outcome {
	id := fault.NewID(now)
	resp := e.formatter.RateLimited(id, now, retryAfter)

	span.Logger().Warn(ctx, "invocation rejected",
		observe.Field{Key: "error_id", Value: id},
		observe.Field{Key: "reason", Value: reason.Error()},
	)
	span.Rejected()

	resource, action := auditTarget(meta)
	e.auditor.Record(context.WithoutCancel(ctx), audit.Event{
		Type:      audit.EventSecurityAlert,
		Resource:  resource,
		Action:    action,
		Outcome:   audit.OutcomeRejected,
		Timestamp: now,
		Details: map[string]any{
			"client_id": clientID,
			"error_id":  id,
			"reason":    reason.Error(),
		},
	})

	return Outcome{Status: StatusRejected, Err: reason, Response: &resp}
}

// shed turns away an invocation because the bulkhead is full. It is audited
// as a rejected data access, not a security alert.
func (e *Executor) shed(ctx context.Context, span *observe.Span, meta observe.OperationMeta, clientID string, now time.Time) Outcome {
	id := fault.NewID(now)
	resp := e.formatter.CapacityExceeded(id, now)

	span.Logger().Warn(ctx, "invocation shed",
		observe.Field{Key: "error_id", Value: id},
		observe.Field{Key: "reason", Value: ErrBulkheadFull.Error()},
	)
	span.Rejected()

	resource, action := auditTarget(meta)
	e.auditor.Record(context.WithoutCancel(ctx), audit.Event{
		Type:      audit.EventDataAccess,
		Resource:  resource,
		Action:    action,
		Outcome:   audit.OutcomeRejected,
		Timestamp: now,
		Details: map[string]any{
			"client_id": clientID,
			"error_id":  id,
			"reason":    ErrBulkheadFull.Error(),
		},
	})

	return Outcome{Status: StatusRejected, Err: ErrBulkheadFull, Response: &resp}
}

func (e *Executor) fail(ctx context.Context, span *observe.Span, meta observe.OperationMeta, clientID string, attempts int, err error) Outcome {
	rec := e.classifier.Classify(err)

	status := StatusFailed
	var resp fault.Response
	if errors.Is(err, ErrCancelled) {
		status = StatusCancelled
		resp = e.formatter.Cancelled(rec)
	} else {
		resp = e.formatter.Format(rec)
	}

	observe.LogRecord(ctx, span.Logger(), "invocation "+status.String(), rec,
		observe.Field{Key: "attempts", Value: attempts},
	)

	resource, action := auditTarget(meta)
	ev := audit.FailureEvent(rec, resource, action)
	if status == StatusCancelled {
		ev.Outcome = audit.OutcomeCancelled
	}
	ev.Details["client_id"] = clientID
	ev.Details["attempts"] = attempts
	e.auditor.Record(context.WithoutCancel(ctx), ev)

	span.End(status.String(), attempts, err)
	return Outcome{Status: status, Attempts: attempts, Err: err, Record: &rec, Response: &resp}
}

func auditTarget(meta observe.OperationMeta) (resource, action string) {
	resource = meta.Namespace
	if resource == "" {
		resource = "default"
	}
	action = meta.Name
	if action == "" {
		action = "anonymous"
	}
	return resource, action
}

// guard turns a panic inside op into a critical System failure.
func guard(op Operation) Operation {
	return func(ctx context.Context) (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				v = nil
				err = fault.System("operation panicked").
					WithSeverity(fault.SeverityCritical).
					WithContext("panic", fmt.Sprint(r))
			}
		}()
		return op(ctx)
	}
}
