package audit

import (
	"time"

	"github.com/jonwraymond/opguard/fault"
)

// EventType categorizes audit events.
type EventType string

const (
	EventAuthSuccess   EventType = "auth.success"
	EventAuthFailure   EventType = "auth.failure"
	EventAuthzFailure  EventType = "authz.failure"
	EventDataAccess    EventType = "data.access"
	EventSecurityAlert EventType = "security.alert"
)

// Outcome values used by the envelope.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

// Event is an append-only audit entry.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Actor     string         `json:"actor"`
	Resource  string         `json:"resource"`
	Action    string         `json:"action"`
	Outcome   string         `json:"outcome"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// TypeForKind returns the event type used to audit a terminal failure of
// kind k.
func TypeForKind(k fault.Kind) EventType {
	switch k {
	case fault.KindAuthentication:
		return EventAuthFailure
	case fault.KindAuthorization:
		return EventAuthzFailure
	default:
		return EventDataAccess
	}
}

// FailureEvent builds the audit event for a classified failure. Only the
// record's ID, kind and severity are copied; internal context stays in the
// application log.
func FailureEvent(rec fault.Record, resource, action string) Event {
	return Event{
		Type:      TypeForKind(rec.Kind()),
		Resource:  resource,
		Action:    action,
		Outcome:   OutcomeFailure,
		Timestamp: rec.Timestamp(),
		Details: map[string]any{
			"error_id":       rec.ID(),
			"error_kind":     rec.Kind().String(),
			"error_severity": rec.Severity().String(),
		},
	}
}
