package resilience

import (
	"fmt"
	"math"
	"time"

	"github.com/jonwraymond/opguard/fault"
)

// Policy controls how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps every delay.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt. Must be > 1.
	Multiplier float64

	// Jitter scales each delay by a uniform factor in [0.5, 1.0].
	Jitter bool

	// RetryableKinds lists the failure kinds worth another attempt. A nil set
	// means {ExternalService}; an empty non-nil set disables retries.
	RetryableKinds fault.KindSet
}

// DefaultPolicy returns 3 attempts, 100ms base delay doubling up to 30s with
// jitter, retrying external service failures only.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
		RetryableKinds: fault.NewKindSet(fault.KindExternalService),
	}
}

// neverRetried lists kinds whose failures must reach the caller at once.
var neverRetried = []fault.Kind{
	fault.KindValidation,
	fault.KindBusinessLogic,
	fault.KindAuthentication,
	fault.KindAuthorization,
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	case p.BaseDelay < 0:
		return fmt.Errorf("%w: base delay must not be negative", ErrInvalidPolicy)
	case p.BaseDelay > p.MaxDelay:
		return fmt.Errorf("%w: base delay %s exceeds max delay %s", ErrInvalidPolicy, p.BaseDelay, p.MaxDelay)
	case !(p.Multiplier > 1):
		return fmt.Errorf("%w: multiplier must be greater than 1, got %v", ErrInvalidPolicy, p.Multiplier)
	}
	for _, k := range neverRetried {
		if p.RetryableKinds.Has(k) {
			return fmt.Errorf("%w: %s failures cannot be retried", ErrInvalidPolicy, k)
		}
	}
	return nil
}

// Retryable reports whether a failure of kind k may be retried.
func (p Policy) Retryable(k fault.Kind) bool {
	if p.RetryableKinds == nil {
		return k == fault.KindExternalService
	}
	return p.RetryableKinds.Has(k)
}

// Delay returns the un-jittered wait after failed attempt n (zero-based):
// min(BaseDelay * Multiplier^n, MaxDelay).
func (p Policy) Delay(n int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n))
	if math.IsNaN(d) || math.IsInf(d, 0) || d >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// jitter scales d by 0.5 + 0.5*r for r in [0, 1).
func jitter(d time.Duration, r float64) time.Duration {
	return time.Duration(float64(d) * (0.5 + 0.5*r))
}
