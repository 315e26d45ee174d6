package resilience

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonwraymond/opguard/fault"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.NoError(t, p.Validate())
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.True(t, p.Jitter)
	assert.Equal(t, []fault.Kind{fault.KindExternalService}, p.RetryableKinds.Slice())
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
		ok     bool
	}{
		{"default", func(*Policy) {}, true},
		{"zero attempts", func(p *Policy) { p.MaxAttempts = 0 }, false},
		{"single attempt", func(p *Policy) { p.MaxAttempts = 1 }, true},
		{"negative base", func(p *Policy) { p.BaseDelay = -time.Second }, false},
		{"base above max", func(p *Policy) { p.BaseDelay = time.Minute }, false},
		{"base equals max", func(p *Policy) { p.BaseDelay = p.MaxDelay }, true},
		{"multiplier one", func(p *Policy) { p.Multiplier = 1 }, false},
		{"multiplier NaN", func(p *Policy) { p.Multiplier = math.NaN() }, false},
		{"system retryable", func(p *Policy) { p.RetryableKinds = fault.NewKindSet(fault.KindSystem) }, true},
		{"validation retryable", func(p *Policy) { p.RetryableKinds = fault.NewKindSet(fault.KindValidation) }, false},
		{"authorization retryable", func(p *Policy) { p.RetryableKinds = fault.NewKindSet(fault.KindAuthorization) }, false},
		{"nil kinds", func(p *Policy) { p.RetryableKinds = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPolicy)
			}
		})
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 10*time.Second, p.Delay(4))
	assert.Equal(t, 10*time.Second, p.Delay(5000))
}

func TestPolicy_Retryable(t *testing.T) {
	var p Policy
	assert.True(t, p.Retryable(fault.KindExternalService), "nil set means default")
	assert.False(t, p.Retryable(fault.KindSystem))

	p.RetryableKinds = fault.KindSet{}
	assert.False(t, p.Retryable(fault.KindExternalService), "empty set disables retries")

	p.RetryableKinds = fault.NewKindSet(fault.KindExternalService, fault.KindSystem)
	assert.True(t, p.Retryable(fault.KindSystem))
	assert.False(t, p.Retryable(fault.KindValidation))
}

func TestJitterBounds(t *testing.T) {
	d := 2 * time.Second
	assert.Equal(t, time.Second, jitter(d, 0))
	assert.Equal(t, 1500*time.Millisecond, jitter(d, 0.5))
	assert.LessOrEqual(t, jitter(d, 0.9999), d)
}
