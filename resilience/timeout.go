package resilience

import (
	"context"
	"time"

	"github.com/jonwraymond/opguard/fault"
)

const defaultAttemptTimeout = 30 * time.Second

// TimeoutConfig bounds a single attempt. Zero means 30 seconds.
type TimeoutConfig struct {
	Timeout time.Duration
}

// Timeout bounds individual attempts of an operation.
//
// An attempt that overruns fails with an ExternalService fault wrapping
// ErrTimeout, which the retry loop treats as a transient dependency failure.
// The abandoned attempt keeps running until it notices its context ended.
type Timeout struct {
	limit time.Duration
}

func NewTimeout(cfg TimeoutConfig) *Timeout {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAttemptTimeout
	}
	return &Timeout{limit: cfg.Timeout}
}

type attemptResult struct {
	value any
	err   error
}

// Execute runs one attempt of op under the limit. Cancellation of ctx
// itself is reported as ctx.Err(), not as a timeout.
func (t *Timeout) Execute(ctx context.Context, op Operation) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- attemptResult{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-attemptCtx.Done():
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fault.Wrap(ErrTimeout, fault.KindExternalService, "attempt timed out").
		WithContext("timeout", t.limit.String())
}

// Wrap returns op with every call bounded by the limit.
func (t *Timeout) Wrap(op Operation) Operation {
	return func(ctx context.Context) (any, error) {
		return t.Execute(ctx, op)
	}
}

func (t *Timeout) Config() TimeoutConfig {
	return TimeoutConfig{Timeout: t.limit}
}
