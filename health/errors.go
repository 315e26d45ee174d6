package health

import "errors"

var (
	// ErrCheckTimeout indicates a probe did not finish within its timeout.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckPanic indicates a probe panicked.
	ErrCheckPanic = errors.New("health: check panicked")

	// ErrCheckerNotFound indicates no probe is registered under a name.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrThresholdExceeded indicates a resource probe crossed its limit.
	ErrThresholdExceeded = errors.New("health: threshold exceeded")

	// ErrNilProbe indicates a probe was built without its backend.
	ErrNilProbe = errors.New("health: nil probe backend")

	// ErrUnexpectedStatus indicates an HTTP probe got a non-success status.
	ErrUnexpectedStatus = errors.New("health: unexpected HTTP status")
)
