package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireRespectsRefillRate(t *testing.T) {
	// Burst of 1 at 20 tokens/sec: 5 acquires need at least 4 refills,
	// so the wall clock floor is 4 * 50ms.
	l := New(Bucket{Capacity: 1, RefillPerSec: 20}, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx, "reverb"))
	}
	require.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond)
}

func TestAcquireBurstIsImmediate(t *testing.T) {
	l := New(Bucket{Capacity: 3, RefillPerSec: 0.5}, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, "sweetwater"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquireTimeout(t *testing.T) {
	l := New(Bucket{Capacity: 1, RefillPerSec: 0.01}, nil)
	require.NoError(t, l.Acquire(context.Background(), "reverb"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, "reverb")
	require.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestAcquireExpiredContextPropagates(t *testing.T) {
	l := New(Bucket{Capacity: 1, RefillPerSec: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	// A run whose deadline already elapsed was abandoned, not throttled.
	err := l.Acquire(ctx, "reverb")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, ErrAcquireTimeout)
}

func TestAcquireCancelPropagates(t *testing.T) {
	l := New(Bucket{Capacity: 1, RefillPerSec: 0.01}, nil)
	require.NoError(t, l.Acquire(context.Background(), "reverb"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := l.Acquire(ctx, "reverb")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBucketsAreIndependent(t *testing.T) {
	l := New(Bucket{Capacity: 1, RefillPerSec: 0.01}, map[string]Bucket{
		"guitar_center": {Capacity: 5, RefillPerSec: 100},
	})
	ctx := context.Background()

	// Drain the fallback-sized reverb bucket.
	require.NoError(t, l.Acquire(ctx, "reverb"))

	// guitar_center has its own override bucket and is unaffected.
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx, "guitar_center"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
