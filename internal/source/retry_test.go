package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RickyRick89/shopper/internal/ratelimit"
	"github.com/RickyRick89/shopper/internal/store"
)

type scriptedSource struct {
	id    string
	calls int
	fetch func(call int) (store.PriceObservation, error)
}

func (s *scriptedSource) ID() string { return s.id }

func (s *scriptedSource) Fetch(_ context.Context, _ store.SourceRef) (store.PriceObservation, error) {
	s.calls++
	return s.fetch(s.calls)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffCap: 2 * time.Millisecond}
}

func TestRetrierTransientExhaustsAttempts(t *testing.T) {
	src := &scriptedSource{id: "reverb", fetch: func(int) (store.PriceObservation, error) {
		return store.PriceObservation{}, Transient("reverb", errors.New("http 503"))
	}}

	r := NewRetrier(fastPolicy(), nil, zerolog.Nop())
	_, attempts, err := r.Fetch(context.Background(), src, store.SourceRef{SourceID: "reverb", Locator: "1"})

	require.Error(t, err)
	require.Equal(t, 3, src.calls)
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		require.Equal(t, i+1, a.Attempt)
		require.Equal(t, store.AttemptTransientFailure, a.Outcome)
		require.NotEmpty(t, a.Error)
	}
}

func TestRetrierPermanentStopsImmediately(t *testing.T) {
	src := &scriptedSource{id: "reverb", fetch: func(int) (store.PriceObservation, error) {
		return store.PriceObservation{}, Permanent("reverb", errors.New("http 404"))
	}}

	r := NewRetrier(fastPolicy(), nil, zerolog.Nop())
	_, attempts, err := r.Fetch(context.Background(), src, store.SourceRef{SourceID: "reverb", Locator: "1"})

	require.Error(t, err)
	require.True(t, IsPermanent(err))
	require.Equal(t, 1, src.calls)
	require.Len(t, attempts, 1)
	require.Equal(t, store.AttemptPermanentFailure, attempts[0].Outcome)
}

func TestRetrierRecoversAfterTransient(t *testing.T) {
	want := store.PriceObservation{SourceID: "reverb", InStock: true}
	src := &scriptedSource{id: "reverb", fetch: func(call int) (store.PriceObservation, error) {
		if call < 3 {
			return store.PriceObservation{}, Transient("reverb", errors.New("http 502"))
		}
		return want, nil
	}}

	r := NewRetrier(fastPolicy(), nil, zerolog.Nop())
	obs, attempts, err := r.Fetch(context.Background(), src, store.SourceRef{SourceID: "reverb", Locator: "1"})

	require.NoError(t, err)
	require.Equal(t, want.SourceID, obs.SourceID)
	require.Len(t, attempts, 3)
	require.Equal(t, store.AttemptSuccess, attempts[2].Outcome)
}

func TestRetrierRateLimitTimeoutSkips(t *testing.T) {
	src := &scriptedSource{id: "reverb", fetch: func(int) (store.PriceObservation, error) {
		t.Fatal("fetch must not run without a token")
		return store.PriceObservation{}, nil
	}}

	// Capacity 1 with no refill to speak of: drain the burst, then the next
	// acquire cannot succeed inside the deadline.
	limiter := ratelimit.New(ratelimit.Bucket{Capacity: 1, RefillPerSec: 0.001}, nil)
	require.NoError(t, limiter.Acquire(context.Background(), "reverb"))

	r := NewRetrier(fastPolicy(), limiter, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, attempts, err := r.Fetch(ctx, src, store.SourceRef{SourceID: "reverb", Locator: "1"})
	require.ErrorIs(t, err, ratelimit.ErrAcquireTimeout)
	require.Empty(t, attempts)
	require.Equal(t, 0, src.calls)
}

func TestRetrierContextCancelDuringBackoff(t *testing.T) {
	src := &scriptedSource{id: "reverb", fetch: func(int) (store.PriceObservation, error) {
		return store.PriceObservation{}, Transient("reverb", errors.New("http 500"))
	}}

	policy := RetryPolicy{MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Second}
	r := NewRetrier(policy, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, attempts, err := r.Fetch(ctx, src, store.SourceRef{SourceID: "reverb", Locator: "1"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, src.calls)
	require.Len(t, attempts, 1)
}
