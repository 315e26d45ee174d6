package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/opguard/fault"
)

// Operation is a unit of work guarded by the envelope.
type Operation func(ctx context.Context) (any, error)

// RetryConfig configures a Retry.
type RetryConfig struct {
	// Classifier decides the kind of each failure.
	// Default: fault.NewClassifier()
	Classifier *fault.Classifier

	// OnRetry is called before each wait with the failed attempt number
	// (1-based), its error and the delay about to be slept.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Wait sleeps for d or until ctx ends.
	// Default: a timer raced against ctx.Done().
	Wait func(ctx context.Context, d time.Duration) error

	// Rand returns a float in [0, 1) used for jitter.
	// Default: math/rand/v2.Float64
	Rand func() float64
}

// Retry runs operations under a Policy.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.Classifier == nil {
		config.Classifier = fault.NewClassifier()
	}
	if config.Wait == nil {
		config.Wait = sleep
	}
	if config.Rand == nil {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		config.Rand = rand.Float64
	}
	return &Retry{config: config}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs op until it succeeds, fails with a non-retryable kind, the
// attempts run out, or ctx ends.
//
// Non-retryable failures are returned unchanged. Exhaustion returns an
// ExternalService *fault.Error wrapping ErrMaxRetriesExceeded and the last
// failure. Cancellation returns a System *fault.Error wrapping ErrCancelled.
func (r *Retry) Execute(ctx context.Context, op Operation, policy Policy) (any, error) {
	v, _, err := r.run(ctx, op, policy, nil)
	return v, err
}

// Wrap returns op bound to policy.
func (r *Retry) Wrap(op Operation, policy Policy) Operation {
	return func(ctx context.Context) (any, error) {
		return r.Execute(ctx, op, policy)
	}
}

// Do is a typed form of Execute.
func Do[T any](ctx context.Context, r *Retry, policy Policy, op func(context.Context) (T, error)) (T, error) {
	v, err := r.Execute(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, policy)
	if err != nil {
		var zero T
		return zero, err
	}
	// A nil interface result arrives as a nil any; it asserts to the zero T.
	t, _ := v.(T)
	return t, nil
}

// run is Execute plus the attempt count and an extra retry hook.
func (r *Retry) run(ctx context.Context, op Operation, policy Policy, hook func(attempt int, delay time.Duration, err error)) (any, int, error) {
	if err := policy.Validate(); err != nil {
		return nil, 0, err
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, attempts, cancelled(attempts, err)
		}

		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, attempts, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempts, cancelled(attempts, errors.Join(ctxErr, err))
		}

		kind, severity := r.config.Classifier.Categorize(err)
		if !policy.Retryable(kind) {
			return nil, attempts, err
		}
		if attempts >= policy.MaxAttempts {
			return nil, attempts, exhausted(attempts, severity, err)
		}

		delay := policy.Delay(attempts - 1)
		if policy.Jitter {
			delay = jitter(delay, r.config.Rand())
		}
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempts, err, delay)
		}
		if hook != nil {
			hook(attempts, delay, err)
		}
		if werr := r.config.Wait(ctx, delay); werr != nil {
			return nil, attempts, cancelled(attempts, werr)
		}
	}
}

func exhausted(attempts int, severity fault.Severity, last error) error {
	return fault.New(fault.KindExternalService, fmt.Sprintf("operation failed after %d attempts", attempts)).
		WithSeverity(severity).
		WithCause(errors.Join(ErrMaxRetriesExceeded, last)).
		WithContext("attempts", attempts).
		WithContext("lastError", last.Error())
}

func cancelled(attempts int, cause error) error {
	return fault.New(fault.KindSystem, "operation cancelled").
		WithSeverity(fault.SeverityLow).
		WithCause(errors.Join(ErrCancelled, cause)).
		WithContext("attempts", attempts)
}

// Attempts returns the attempt count recorded on an exhausted or cancelled
// error.
func Attempts(err error) (int, bool) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return 0, false
	}
	n, ok := fe.Context["attempts"].(int)
	return n, ok
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
