package fault

import (
	"encoding/json"
	"maps"
	"net/http"
	"time"
)

// StatusClientClosedRequest is returned for operations cancelled by the caller.
const StatusClientClosedRequest = 499

// Codes for outcomes that are not error kinds.
const (
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeCancelled        = "REQUEST_CANCELLED"
)

// Body is the externally visible description of a failure.
type Body struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Code      string         `json:"code"`
	Severity  string         `json:"severity"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Response is the error envelope returned to callers: {"error": {...}}.
type Response struct {
	Error  Body `json:"error"`
	status int
}

// HTTPStatus returns the HTTP status code for the response.
func (r Response) HTTPStatus() int {
	if r.status == 0 {
		return http.StatusInternalServerError
	}
	return r.status
}

// JSON encodes the response.
func (r Response) JSON() ([]byte, error) {
	return json.Marshal(r)
}

var severityMessages = map[Severity]string{
	SeverityLow:      "A minor issue occurred. Please try again.",
	SeverityMedium:   "An error occurred while processing your request.",
	SeverityHigh:     "A serious error occurred. Please contact support.",
	SeverityCritical: "A critical system error occurred. Please contact support immediately.",
}

var kindMessages = map[Kind]string{
	KindAuthentication:  "Authentication failed. Please check your credentials.",
	KindAuthorization:   "You do not have permission to perform this action.",
	KindExternalService: "A required service is temporarily unavailable. Please try again later.",
}

// Formatter renders Records as caller-safe Responses.
//
// Validation and business-logic records expose their message and details.
// Every other kind gets a generic message and no details, so internal
// diagnostics never reach the caller.
type Formatter struct {
	kindMessages     map[Kind]string
	severityMessages map[Severity]string
	rateLimitMessage string
	capacityMessage  string
	cancelledMessage string
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithKindMessage overrides the generic message for a kind. It has no effect
// on validation and business-logic kinds, which use the record message.
func WithKindMessage(kind Kind, message string) FormatterOption {
	return func(f *Formatter) {
		f.kindMessages[kind] = message
	}
}

// WithSeverityMessage overrides the generic system message for a severity.
func WithSeverityMessage(s Severity, message string) FormatterOption {
	return func(f *Formatter) {
		f.severityMessages[s] = message
	}
}

// NewFormatter creates a formatter with the default messages.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		kindMessages:     maps.Clone(kindMessages),
		severityMessages: maps.Clone(severityMessages),
		rateLimitMessage: "Too many requests. Please slow down and try again later.",
		capacityMessage:  "The service is busy. Please try again shortly.",
		cancelledMessage: "The request was cancelled before it completed.",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format renders a record.
func (f *Formatter) Format(rec Record) Response {
	body := Body{
		ID:        rec.ID(),
		Code:      rec.Kind().Code(),
		Severity:  rec.Severity().String(),
		Timestamp: formatTimestamp(rec.Timestamp()),
	}

	switch rec.Kind() {
	case KindValidation, KindBusinessLogic:
		body.Message = rec.Message()
		if body.Message == "" {
			body.Message = f.severityMessage(rec.Severity())
		}
		if details := rec.Details(); len(details) > 0 {
			body.Details = details
		}
	case KindSystem:
		body.Message = f.severityMessage(rec.Severity())
	default:
		if msg, ok := f.kindMessages[rec.Kind()]; ok {
			body.Message = msg
		} else {
			body.Message = f.severityMessage(rec.Severity())
		}
	}

	return Response{Error: body, status: rec.Kind().HTTPStatus()}
}

// RateLimited renders an admission rejection. retryAfter is reported in the
// details when positive.
func (f *Formatter) RateLimited(id string, at time.Time, retryAfter time.Duration) Response {
	body := Body{
		ID:        id,
		Message:   f.rateLimitMessage,
		Code:      CodeRateLimited,
		Severity:  SeverityLow.String(),
		Timestamp: formatTimestamp(at),
	}
	if retryAfter > 0 {
		body.Details = map[string]any{"retry_after_seconds": max(1, int(retryAfter.Round(time.Second)/time.Second))}
	}
	return Response{Error: body, status: http.StatusTooManyRequests}
}

// CapacityExceeded renders a rejection caused by the service being at its
// concurrency limit rather than by the caller's own request rate.
func (f *Formatter) CapacityExceeded(id string, at time.Time) Response {
	body := Body{
		ID:        id,
		Message:   f.capacityMessage,
		Code:      CodeCapacityExceeded,
		Severity:  SeverityMedium.String(),
		Timestamp: formatTimestamp(at),
	}
	return Response{Error: body, status: http.StatusServiceUnavailable}
}

// Cancelled renders an operation abandoned because its context ended.
func (f *Formatter) Cancelled(rec Record) Response {
	body := Body{
		ID:        rec.ID(),
		Message:   f.cancelledMessage,
		Code:      CodeCancelled,
		Severity:  SeverityLow.String(),
		Timestamp: formatTimestamp(rec.Timestamp()),
	}
	return Response{Error: body, status: StatusClientClosedRequest}
}

func (f *Formatter) severityMessage(s Severity) string {
	if msg, ok := f.severityMessages[s.OrDefault()]; ok {
		return msg
	}
	return "An unexpected error occurred."
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
