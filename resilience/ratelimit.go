package resilience

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// MaxRequests is the number of requests a client may make per window.
	// Zero rejects every request.
	MaxRequests int

	// Window is the length of the sliding window. Must be positive.
	Window time.Duration

	// Clock supplies the current time for Allow.
	// Default: time.Now
	Clock func() time.Time
}

// RateLimiter is a per-client sliding-window log limiter.
//
// A request at time now is accepted when fewer than MaxRequests accepted
// requests for the same client fall within [now-Window, now]. Rejected
// requests are not recorded and do not extend the client's penalty.
//
// Clients are independent: each has its own lock, so contention on one
// client never blocks another.
type RateLimiter struct {
	max    int
	window time.Duration
	clock  func() time.Time

	mu      sync.RWMutex
	buckets map[string]*bucket
}

type bucket struct {
	mu    sync.Mutex
	times []time.Time
	// dead is set once the sweeper removed the bucket from the map.
	dead bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) (*RateLimiter, error) {
	if config.Window <= 0 {
		return nil, ErrInvalidWindow
	}
	if config.MaxRequests < 0 {
		return nil, ErrInvalidMaxRequests
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &RateLimiter{
		max:     config.MaxRequests,
		window:  config.Window,
		clock:   config.Clock,
		buckets: make(map[string]*bucket),
	}, nil
}

// Allow reports whether clientID may proceed now, recording the request when
// it is accepted.
func (rl *RateLimiter) Allow(clientID string) bool {
	return rl.IsAllowed(clientID, rl.clock())
}

// IsAllowed reports whether clientID may proceed at now, recording the
// request when it is accepted.
func (rl *RateLimiter) IsAllowed(clientID string, now time.Time) bool {
	for {
		b := rl.bucket(clientID)
		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}
		b.prune(now.Add(-rl.window))
		ok := len(b.times) < rl.max
		if ok {
			b.times = append(b.times, now)
		}
		b.mu.Unlock()
		return ok
	}
}

// Count returns the number of accepted requests for clientID inside the
// window ending at now.
func (rl *RateLimiter) Count(clientID string, now time.Time) int {
	rl.mu.RLock()
	b, ok := rl.buckets[clientID]
	rl.mu.RUnlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now.Add(-rl.window))
	return len(b.times)
}

// RetryAfter returns how long clientID must wait after now before a request
// would be accepted. It returns zero when a request would be accepted now.
func (rl *RateLimiter) RetryAfter(clientID string, now time.Time) time.Duration {
	if rl.max == 0 {
		return rl.window
	}
	rl.mu.RLock()
	b, ok := rl.buckets[clientID]
	rl.mu.RUnlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now.Add(-rl.window))
	if len(b.times) < rl.max {
		return 0
	}
	// The window is inclusive, so the entry stays counted until strictly
	// after oldest+window.
	wait := b.times[len(b.times)-rl.max].Add(rl.window).Sub(now) + time.Nanosecond
	return max(wait, time.Nanosecond)
}

// Reset forgets every request recorded for clientID.
func (rl *RateLimiter) Reset(clientID string) {
	rl.mu.Lock()
	b, ok := rl.buckets[clientID]
	delete(rl.buckets, clientID)
	rl.mu.Unlock()
	if ok {
		b.mu.Lock()
		b.dead = true
		b.mu.Unlock()
	}
}

// Clients returns the IDs of clients with a live bucket, sorted.
func (rl *RateLimiter) Clients() []string {
	rl.mu.RLock()
	ids := make([]string, 0, len(rl.buckets))
	for id := range rl.buckets {
		ids = append(ids, id)
	}
	rl.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Sweep drops buckets with no requests inside the window ending at now and
// returns how many were removed.
func (rl *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-rl.window)
	removed := 0

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, b := range rl.buckets {
		b.mu.Lock()
		b.prune(cutoff)
		if len(b.times) == 0 {
			b.dead = true
			delete(rl.buckets, id)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (rl *RateLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = rl.window
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Sweep(rl.clock())
			}
		}
	}()
}

// Execute runs op if clientID is allowed, or returns ErrRateLimitExceeded.
func (rl *RateLimiter) Execute(ctx context.Context, clientID string, op Operation) (any, error) {
	if !rl.Allow(clientID) {
		return nil, ErrRateLimitExceeded
	}
	return op(ctx)
}

func (rl *RateLimiter) bucket(clientID string) *bucket {
	rl.mu.RLock()
	b, ok := rl.buckets[clientID]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[clientID]; ok {
		return b
	}
	b = &bucket{}
	rl.buckets[clientID] = b
	return b
}

// prune drops timestamps strictly before cutoff. Callers hold b.mu.
func (b *bucket) prune(cutoff time.Time) {
	keep := b.times[:0]
	for _, t := range b.times {
		if !t.Before(cutoff) {
			keep = append(keep, t)
		}
	}
	b.times = keep
}
