package resilience

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/opguard/fault"
)

func TestBulkhead_Defaults(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{})
	assert.Equal(t, 10, b.Stats().MaxConcurrent)
}

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})

	require.NoError(t, b.Acquire(context.Background()))
	assert.ErrorIs(t, b.Acquire(context.Background()), ErrBulkheadFull)

	stats := b.Stats()
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 0, stats.Available)
	assert.Equal(t, int64(1), stats.Rejected)

	b.Release()
	assert.NoError(t, b.Acquire(context.Background()))
	assert.Equal(t, 1, b.Stats().Peak)
}

func TestBulkhead_WaitsForSlot(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Second})
	require.NoError(t, b.Acquire(context.Background()))

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Release()
	}()

	assert.NoError(t, b.Acquire(context.Background()))
}

func TestBulkhead_ContextEndsWait(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Minute})
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, b.Acquire(ctx), context.DeadlineExceeded)
}

func TestBulkhead_Execute(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 2})

	v, err := b.Execute(context.Background(), func(context.Context) (any, error) {
		assert.Equal(t, 1, b.Stats().Active)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 0, b.Stats().Active)
}

func TestTimeout_AttemptTimesOut(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: 10 * time.Millisecond})

	_, err := to.Execute(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, fault.IsKind(err, fault.KindExternalService))
}

func TestTimeout_ParentCancellationIsNotATimeout(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := to.Execute(ctx, func(ctx context.Context) (any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestTimeout_FastOperation(t *testing.T) {
	to := NewTimeout(TimeoutConfig{})
	assert.Equal(t, 30*time.Second, to.Config().Timeout)

	v, err := to.Wrap(func(context.Context) (any, error) { return 1, nil })(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestTimeout_RetriedAsExternalFailure(t *testing.T) {
	w := &fakeWait{}
	to := NewTimeout(TimeoutConfig{Timeout: 5 * time.Millisecond})
	var calls atomic.Int32

	_, err := newTestRetry(w).Execute(context.Background(), to.Wrap(func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	}), testPolicy())

	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(3), calls.Load())
}
