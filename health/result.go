package health

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the overall health of a service.
type Status int

const (
	// StatusHealthy means every check passed.
	StatusHealthy Status = iota
	// StatusUnhealthy means at least one check failed.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// CheckStatus is the result of a single probe.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckFail
)

func (s CheckStatus) String() string {
	if s == CheckPass {
		return "pass"
	}
	return "fail"
}

func (s CheckStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Probe checks one dependency. A nil error means the dependency is usable.
type Probe interface {
	Check(ctx context.Context) error
}

// ProbeFunc adapts a function to a Probe.
type ProbeFunc func(ctx context.Context) error

// Check calls f.
func (f ProbeFunc) Check(ctx context.Context) error { return f(ctx) }

// CheckResult is the outcome of one registered probe.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Latency time.Duration
	// Error is the probe's error message; empty on pass.
	Error string
}

// Passed reports whether the probe passed.
func (r CheckResult) Passed() bool { return r.Status == CheckPass }

func (r CheckResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name      string      `json:"name"`
		Status    CheckStatus `json:"status"`
		LatencyMs float64     `json:"latency_ms"`
		Error     string      `json:"error,omitempty"`
	}{r.Name, r.Status, millis(r.Latency), r.Error})
}

// Report is the result of RunChecks.
type Report struct {
	Status Status
	// Checks holds one entry per registered probe, in registration order.
	Checks    []CheckResult
	Timestamp time.Time
	Duration  time.Duration
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool { return r.Status == StatusHealthy }

// Failed returns the checks that failed.
func (r Report) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Passed() {
			out = append(out, c)
		}
	}
	return out
}

func (r Report) MarshalJSON() ([]byte, error) {
	checks := r.Checks
	if checks == nil {
		checks = []CheckResult{}
	}
	return json.Marshal(struct {
		Status     Status        `json:"status"`
		Timestamp  string        `json:"timestamp"`
		DurationMs float64       `json:"duration_ms"`
		Checks     []CheckResult `json:"checks"`
	}{r.Status, r.Timestamp.UTC().Format(time.RFC3339), millis(r.Duration), checks})
}

// String summarizes the report on one line.
func (r Report) String() string {
	return fmt.Sprintf("%s (%d checks, %d failed)", r.Status, len(r.Checks), len(r.Failed()))
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
