package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig bounds concurrent invocations.
type BulkheadConfig struct {
	// MaxConcurrent is the number of slots. Default: 10
	MaxConcurrent int

	// MaxWait is how long Acquire queues for a slot. Zero rejects at once.
	MaxWait time.Duration
}

// Bulkhead caps the number of guarded operations running at once, so one
// slow dependency cannot take every worker with it.
type Bulkhead struct {
	slots   *semaphore.Weighted
	size    int
	maxWait time.Duration

	mu       sync.Mutex
	active   int
	peak     int
	rejected int64
}

// NewBulkhead returns a bulkhead with cfg.MaxConcurrent slots.
func NewBulkhead(cfg BulkheadConfig) *Bulkhead {
	size := cfg.MaxConcurrent
	if size <= 0 {
		size = 10
	}
	return &Bulkhead{
		slots:   semaphore.NewWeighted(int64(size)),
		size:    size,
		maxWait: cfg.MaxWait,
	}
}

// Acquire takes a slot. It fails with ErrBulkheadFull when none frees up
// within MaxWait, or with ctx.Err() when ctx ends first.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.slots.TryAcquire(1) {
		b.track(1)
		return nil
	}
	if b.maxWait <= 0 {
		b.reject()
		return ErrBulkheadFull
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()
	if err := b.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.reject()
		return ErrBulkheadFull
	}
	b.track(1)
	return nil
}

// Release returns a slot taken by Acquire. Extra calls are ignored.
func (b *Bulkhead) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == 0 {
		return
	}
	b.active--
	b.slots.Release(1)
}

func (b *Bulkhead) track(n int) {
	b.mu.Lock()
	b.active += n
	if b.active > b.peak {
		b.peak = b.active
	}
	b.mu.Unlock()
}

func (b *Bulkhead) reject() {
	b.mu.Lock()
	b.rejected++
	b.mu.Unlock()
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op Operation) (any, error) {
	if err := b.Acquire(ctx); err != nil {
		return nil, err
	}
	defer b.Release()
	return op(ctx)
}

// BulkheadStats is a point-in-time view of slot usage.
type BulkheadStats struct {
	Active        int
	Peak          int
	Available     int
	MaxConcurrent int
	Rejected      int64
}

func (b *Bulkhead) Stats() BulkheadStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BulkheadStats{
		Active:        b.active,
		Peak:          b.peak,
		Available:     b.size - b.active,
		MaxConcurrent: b.size,
		Rejected:      b.rejected,
	}
}
