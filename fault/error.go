package fault

import (
	"errors"
	"fmt"
	"maps"
)

// Error is a typed failure raised by operations running inside the envelope.
//
// Details carries field-level information that is safe to show to callers
// (only surfaced for validation and business-logic kinds). Context carries
// internal diagnostics that never leave the process.
type Error struct {
	Kind     Kind
	Severity Severity
	Message  string
	Details  map[string]any
	Context  map[string]any
	Cause    error
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an error of the given kind caused by err.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// FieldError creates a validation error for a single input field.
func FieldError(field, message string) *Error {
	return New(KindValidation, "validation failed").WithDetail(field, message)
}

// Authentication creates an authentication error.
func Authentication(message string) *Error {
	return New(KindAuthentication, message)
}

// Authorization creates an authorization error.
func Authorization(message string) *Error {
	return New(KindAuthorization, message)
}

// BusinessLogic creates a business rule violation.
func BusinessLogic(message string) *Error {
	return New(KindBusinessLogic, message)
}

// ExternalService creates an error for a failing dependency.
func ExternalService(service, message string) *Error {
	return New(KindExternalService, message).WithContext("service", service)
}

// System creates an internal error.
func System(message string) *Error {
	return New(KindSystem, message)
}

// Configuration creates an internal error for invalid or missing settings.
func Configuration(setting, message string) *Error {
	return New(KindSystem, message).
		WithSeverity(SeverityHigh).
		WithContext("setting", setting)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSeverity sets the severity.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// WithCause sets the underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetail adds a caller-safe detail.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithDetails merges caller-safe details.
func (e *Error) WithDetails(details map[string]any) *Error {
	if len(details) == 0 {
		return e
	}
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	maps.Copy(e.Details, details)
	return e
}

// WithContext adds an internal diagnostic value.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf returns the kind of the first *Error in err's chain, and false when
// there is none.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return KindSystem, false
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
