package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/RickyRick89/shopper/internal/alert"
	"github.com/RickyRick89/shopper/internal/scrape"
	"github.com/RickyRick89/shopper/internal/source"
	"github.com/RickyRick89/shopper/internal/store"
)

type staticSource struct {
	id    string
	price string
}

func (s *staticSource) ID() string { return s.id }

func (s *staticSource) Fetch(_ context.Context, _ store.SourceRef) (store.PriceObservation, error) {
	return store.PriceObservation{
		SourceID:   s.id,
		Price:      decimal.RequireFromString(s.price),
		Currency:   "USD",
		InStock:    true,
		ObservedAt: time.Now().UTC(),
	}, nil
}

type fakeLocker struct {
	acquired bool
	unlocked bool
}

func (f *fakeLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !f.acquired {
		return nil, false, nil
	}
	return func() { f.unlocked = true }, true, nil
}

func newService(t *testing.T, mem *store.Memory, locker store.AdvisoryLocker, stream *alert.StreamNotifier) *Service {
	t.Helper()

	registry := source.NewRegistry()
	registry.Register(&staticSource{id: "reverb", price: "45.00"})

	retrier := source.NewRetrier(source.RetryPolicy{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond}, nil, zerolog.Nop())
	coord := scrape.New(scrape.Options{}, mem, mem, registry, retrier, nil, zerolog.Nop())
	eval := alert.New(mem, mem, stream, zerolog.Nop())

	return New(Options{AdvisoryLockKey: 1}, coord, eval, mem, locker, nil, zerolog.Nop())
}

func TestScrapeThenEvaluate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutProduct(store.TrackedProduct{ID: 1, Name: "Stratocaster", Refs: []store.SourceRef{{SourceID: "reverb", Locator: "a"}}})
	mem.PutWatch(store.Watch{ID: 1, UserID: 2, ProductID: 1, TargetPrice: decimal.NewFromInt(50)})

	locker := &fakeLocker{acquired: true}
	stream := alert.NewStreamNotifier(8)
	svc := newService(t, mem, locker, stream)

	require.NoError(t, svc.ScrapeCycle(ctx))
	require.True(t, locker.unlocked)

	runs := svc.RecentRuns(10)
	require.Len(t, runs, 1)
	require.Equal(t, 1, runs[0].Succeeded)

	require.NoError(t, svc.EvaluateCycle(ctx))
	require.Len(t, stream.Events(), 1)
}

func TestScrapeCycleSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutProduct(store.TrackedProduct{ID: 1, Refs: []store.SourceRef{{SourceID: "reverb", Locator: "a"}}})

	svc := newService(t, mem, &fakeLocker{acquired: false}, alert.NewStreamNotifier(8))

	require.NoError(t, svc.ScrapeCycle(ctx))
	require.Empty(t, svc.RecentRuns(10))

	_, found, err := mem.Latest(ctx, 1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestCleanupCycleHonoursHorizon(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	old := store.PriceObservation{
		ProductID:  1,
		SourceID:   "reverb",
		Price:      decimal.NewFromInt(100),
		Currency:   "USD",
		InStock:    true,
		ObservedAt: time.Now().UTC().Add(-400 * 24 * time.Hour),
	}
	recent := old
	recent.ObservedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, mem.Append(ctx, old))
	require.NoError(t, mem.Append(ctx, recent))

	svc := newService(t, mem, nil, alert.NewStreamNotifier(8))
	require.NoError(t, svc.CleanupCycle(ctx))

	iter, err := mem.History(ctx, 1, store.WindowSince(500*24*time.Hour))
	require.NoError(t, err)
	defer iter.Close()

	var count int
	for iter.Next() {
		count++
	}
	require.NoError(t, iter.Err())
	require.Equal(t, 1, count)
}

func TestRecentRunsNewestFirst(t *testing.T) {
	svc := newService(t, store.NewMemory(), nil, alert.NewStreamNotifier(8))

	for i := 0; i < 3; i++ {
		svc.recordRun(store.ScrapeRun{Units: i})
	}

	runs := svc.RecentRuns(2)
	require.Len(t, runs, 2)
	require.Equal(t, 2, runs[0].Units)
	require.Equal(t, 1, runs[1].Units)
}
