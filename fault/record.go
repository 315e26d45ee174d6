package fault

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Cause describes one link of an error chain.
type Cause struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Record is the normalized, immutable description of a failure.
//
// Accessors return copies; a Record can be shared between goroutines.
type Record struct {
	id        string
	kind      Kind
	severity  Severity
	message   string
	context   map[string]any
	details   map[string]any
	causes    []Cause
	timestamp time.Time
}

// RecordInput holds the fields used to build a Record with NewRecord.
type RecordInput struct {
	ID        string
	Kind      Kind
	Severity  Severity
	Message   string
	Context   map[string]any
	Details   map[string]any
	Causes    []Cause
	Timestamp time.Time
}

// NewRecord builds a Record, copying every map and slice in the input.
// An unset severity resolves to DefaultSeverity.
func NewRecord(in RecordInput) Record {
	return Record{
		id:        in.ID,
		kind:      in.Kind,
		severity:  in.Severity.OrDefault(),
		message:   in.Message,
		context:   maps.Clone(in.Context),
		details:   maps.Clone(in.Details),
		causes:    slices.Clone(in.Causes),
		timestamp: in.Timestamp.UTC(),
	}
}

// ID returns the unique record identifier.
func (r Record) ID() string { return r.id }

// Kind returns the failure category.
func (r Record) Kind() Kind { return r.kind }

// Severity returns the resolved severity.
func (r Record) Severity() Severity { return r.severity }

// Message returns the internal message.
func (r Record) Message() string { return r.message }

// Timestamp returns the creation time in UTC.
func (r Record) Timestamp() time.Time { return r.timestamp }

// Context returns a copy of the internal diagnostics.
func (r Record) Context() map[string]any { return maps.Clone(r.context) }

// Details returns a copy of the caller-safe details.
func (r Record) Details() map[string]any { return maps.Clone(r.details) }

// Causes returns a copy of the cause chain, outermost first.
func (r Record) Causes() []Cause { return slices.Clone(r.causes) }

// IsZero reports whether the record was never populated.
func (r Record) IsZero() bool { return r.id == "" && r.timestamp.IsZero() }

// Fields flattens the record for structured logging.
func (r Record) Fields() map[string]any {
	fields := map[string]any{
		"error_id":       r.id,
		"error_kind":     r.kind.String(),
		"error_severity": r.severity.String(),
		"error_message":  r.message,
	}
	if len(r.context) > 0 {
		fields["error_context"] = r.Context()
	}
	if len(r.causes) > 0 {
		fields["error_causes"] = r.Causes()
	}
	return fields
}

// MarshalJSON renders the full internal view of the record. It is meant for
// logs and audit sinks, not for callers; use a Formatter for those.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string         `json:"id"`
		Kind      Kind           `json:"kind"`
		Severity  Severity       `json:"severity"`
		Message   string         `json:"message"`
		Context   map[string]any `json:"context,omitempty"`
		Details   map[string]any `json:"details,omitempty"`
		Causes    []Cause        `json:"causes,omitempty"`
		Timestamp time.Time      `json:"timestamp"`
	}{r.id, r.kind, r.severity, r.message, r.context, r.details, r.causes, r.timestamp})
}
