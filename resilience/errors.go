package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrMaxRetriesExceeded is wrapped by the error returned when every
	// attempt allowed by the policy failed with a retryable kind.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrCancelled is wrapped by the error returned when the caller's context
	// ended before the operation finished.
	ErrCancelled = errors.New("resilience: operation cancelled")

	// ErrRateLimitExceeded is returned when a client is over its window quota.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is wrapped by the error returned when one attempt runs past
	// its time limit.
	ErrTimeout = errors.New("resilience: attempt timed out")

	// ErrInvalidPolicy is returned by Policy.Validate.
	ErrInvalidPolicy = errors.New("resilience: invalid retry policy")

	// ErrInvalidWindow is returned when a rate limiter window is not positive.
	ErrInvalidWindow = errors.New("resilience: rate limit window must be positive")

	// ErrInvalidMaxRequests is returned when a rate limiter quota is negative.
	ErrInvalidMaxRequests = errors.New("resilience: rate limit max requests must not be negative")
)
