package fault

import "errors"

// Sentinel errors for the fault package.
var (
	// ErrUnknownKind is returned when a kind name cannot be parsed.
	ErrUnknownKind = errors.New("fault: unknown error kind")

	// ErrUnknownSeverity is returned when a severity name cannot be parsed.
	ErrUnknownSeverity = errors.New("fault: unknown severity")
)
