package fault

import (
	"fmt"
	"strings"
)

// Severity orders failures by impact: Low < Medium < High < Critical.
//
// The zero value is SeverityUnset. Classification resolves it to
// SeverityMedium.
type Severity int

const (
	SeverityUnset Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// DefaultSeverity is applied when the raiser did not choose one.
const DefaultSeverity = SeverityMedium

var severityNames = map[Severity]string{
	SeverityUnset:    "unset",
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// String returns the lower-case name of the severity.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// OrDefault returns s, or DefaultSeverity when s is unset or out of range.
func (s Severity) OrDefault() Severity {
	if s < SeverityLow || s > SeverityCritical {
		return DefaultSeverity
	}
	return s
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity parses a severity name, ignoring case.
func ParseSeverity(name string) (Severity, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	for s, n := range severityNames {
		if s != SeverityUnset && n == norm {
			return s, nil
		}
	}
	return SeverityUnset, fmt.Errorf("%w: %q", ErrUnknownSeverity, name)
}
