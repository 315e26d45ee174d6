package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func newTestLimiter(t *testing.T, limit int, window time.Duration) *RateLimiter {
	t.Helper()
	rl, err := NewRateLimiter(RateLimiterConfig{MaxRequests: limit, Window: window})
	require.NoError(t, err)
	return rl
}

func TestNewRateLimiter_Invalid(t *testing.T) {
	_, err := NewRateLimiter(RateLimiterConfig{MaxRequests: 1})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = NewRateLimiter(RateLimiterConfig{MaxRequests: 1, Window: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = NewRateLimiter(RateLimiterConfig{MaxRequests: -1, Window: time.Second})
	assert.ErrorIs(t, err, ErrInvalidMaxRequests)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := newTestLimiter(t, 2, 10*time.Second)

	assert.True(t, rl.IsAllowed("c", at(0)))
	assert.True(t, rl.IsAllowed("c", at(1)))
	assert.False(t, rl.IsAllowed("c", at(2)))
	assert.True(t, rl.IsAllowed("c", at(11)))
	assert.Equal(t, 2, rl.Count("c", at(11)))
}

func TestRateLimiter_WindowBoundaryIsInclusive(t *testing.T) {
	rl := newTestLimiter(t, 1, 10*time.Second)

	assert.True(t, rl.IsAllowed("c", at(0)))
	assert.False(t, rl.IsAllowed("c", at(10)), "request exactly one window old still counts")
	assert.True(t, rl.IsAllowed("c", at(10.001)))
}

func TestRateLimiter_RejectionsAreNotRecorded(t *testing.T) {
	rl := newTestLimiter(t, 1, 10*time.Second)

	require.True(t, rl.IsAllowed("c", at(0)))
	for s := 1.0; s < 10; s++ {
		assert.False(t, rl.IsAllowed("c", at(s)))
	}
	assert.True(t, rl.IsAllowed("c", at(10.5)))
}

func TestRateLimiter_ZeroMaxRejectsEverything(t *testing.T) {
	rl := newTestLimiter(t, 0, time.Second)

	assert.False(t, rl.IsAllowed("c", at(0)))
	assert.False(t, rl.IsAllowed("c", at(100)))
	assert.Equal(t, time.Second, rl.RetryAfter("c", at(100)))
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute)

	assert.True(t, rl.IsAllowed("a", at(0)))
	assert.True(t, rl.IsAllowed("b", at(0)))
	assert.False(t, rl.IsAllowed("a", at(1)))
	assert.Equal(t, []string{"a", "b"}, rl.Clients())
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	rl := newTestLimiter(t, 2, 10*time.Second)

	assert.Zero(t, rl.RetryAfter("c", at(0)))
	rl.IsAllowed("c", at(0))
	rl.IsAllowed("c", at(1))

	assert.Zero(t, rl.RetryAfter("c", at(10.5)))

	wait := rl.RetryAfter("c", at(2))
	assert.Equal(t, 8*time.Second+time.Nanosecond, wait)
	assert.False(t, rl.IsAllowed("c", at(2).Add(wait-time.Nanosecond)))
	assert.True(t, rl.IsAllowed("c", at(2).Add(wait)))
}

func TestRateLimiter_AllowUsesClock(t *testing.T) {
	now := at(0)
	rl, err := NewRateLimiter(RateLimiterConfig{
		MaxRequests: 1,
		Window:      time.Second,
		Clock:       func() time.Time { return now },
	})
	require.NoError(t, err)

	assert.True(t, rl.Allow("c"))
	assert.False(t, rl.Allow("c"))
	now = at(2)
	assert.True(t, rl.Allow("c"))
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute)

	rl.IsAllowed("c", at(0))
	rl.Reset("c")
	assert.True(t, rl.IsAllowed("c", at(1)))
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := newTestLimiter(t, 1, 10*time.Second)

	rl.IsAllowed("old", at(0))
	rl.IsAllowed("new", at(15))

	assert.Equal(t, 1, rl.Sweep(at(16)))
	assert.Equal(t, []string{"new"}, rl.Clients())

	// A swept client starts over with a fresh bucket.
	assert.True(t, rl.IsAllowed("old", at(16)))
	assert.False(t, rl.IsAllowed("new", at(16)))
}

func TestRateLimiter_ConcurrentAdmission(t *testing.T) {
	const limit = 10
	rl := newTestLimiter(t, limit, time.Minute)

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.IsAllowed("hot", at(0)) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), accepted.Load())
}

func TestRateLimiter_ConcurrentSweep(t *testing.T) {
	rl := newTestLimiter(t, 5, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			rl.Sweep(time.Now())
		}
	}()

	var over atomic.Int64
	var workers sync.WaitGroup
	for i := range 8 {
		workers.Add(1)
		go func() {
			defer workers.Done()
			id := fmt.Sprintf("client-%d", i%2)
			for range 500 {
				now := time.Now()
				if rl.IsAllowed(id, now) && rl.Count(id, now) > 5 {
					over.Add(1)
				}
			}
		}()
	}
	workers.Wait()
	cancel()
	wg.Wait()

	assert.Zero(t, over.Load())
}

func TestRateLimiter_Execute(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Hour)
	calls := 0
	op := func(context.Context) (any, error) {
		calls++
		return nil, nil
	}

	_, err := rl.Execute(context.Background(), "c", op)
	require.NoError(t, err)
	_, err = rl.Execute(context.Background(), "c", op)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 1, calls)
}

func TestRateLimiter_StartSweeper(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl.IsAllowed("c", time.Now())
	rl.StartSweeper(ctx, time.Millisecond)

	assert.Eventually(t, func() bool { return len(rl.Clients()) == 0 }, time.Second, time.Millisecond)
}
