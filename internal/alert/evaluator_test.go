package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/RickyRick89/shopper/internal/store"
)

func seedObservation(t *testing.T, mem *store.Memory, productID int64, price string) {
	t.Helper()
	err := mem.Append(context.Background(), store.PriceObservation{
		ProductID:  productID,
		SourceID:   "reverb",
		Price:      decimal.RequireFromString(price),
		Currency:   "USD",
		InStock:    true,
		ObservedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func TestEvaluatorFiresOnCrossing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutWatch(store.Watch{ID: 1, UserID: 9, ProductID: 1, TargetPrice: decimal.NewFromInt(50)})
	seedObservation(t, mem, 1, "49.99")

	stream := NewStreamNotifier(8)
	ev := New(mem, mem, stream, zerolog.Nop())

	summary, err := ev.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Checked: 1, Triggered: 1}, summary)

	select {
	case event := <-stream.Events():
		require.Equal(t, int64(1), event.WatchID)
		require.Equal(t, int64(9), event.UserID)
		require.Equal(t, "49.99", event.TriggeredPrice.String())
		require.Equal(t, "reverb", event.SourceID)
	default:
		t.Fatal("expected a trigger event")
	}

	// The watch is TRIGGERED now; a second sweep must not fire again.
	summary, err = ev.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{}, summary)
	require.Empty(t, stream.Events())
}

func TestEvaluatorAboveTargetDoesNotFire(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutWatch(store.Watch{ID: 1, UserID: 1, ProductID: 1, TargetPrice: decimal.NewFromInt(50)})
	seedObservation(t, mem, 1, "50.01")

	stream := NewStreamNotifier(8)
	ev := New(mem, mem, stream, zerolog.Nop())

	summary, err := ev.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Checked: 1}, summary)
	require.Empty(t, stream.Events())
}

func TestEvaluatorExactTargetFires(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutWatch(store.Watch{ID: 1, UserID: 1, ProductID: 1, TargetPrice: decimal.RequireFromString("50.00")})
	seedObservation(t, mem, 1, "50.00")

	ev := New(mem, mem, NewStreamNotifier(8), zerolog.Nop())

	summary, err := ev.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Triggered)
}

func TestEvaluatorNoObservationIsNoop(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutWatch(store.Watch{ID: 1, UserID: 1, ProductID: 1, TargetPrice: decimal.NewFromInt(50)})

	ev := New(mem, mem, NewStreamNotifier(8), zerolog.Nop())

	summary, err := ev.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Checked: 1}, summary)
}

func TestEvaluatorConcurrentSweepsFireOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutWatch(store.Watch{ID: 1, UserID: 1, ProductID: 1, TargetPrice: decimal.NewFromInt(50)})
	seedObservation(t, mem, 1, "42.00")

	stream := NewStreamNotifier(64)

	const sweeps = 16
	var wg sync.WaitGroup
	for i := 0; i < sweeps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := New(mem, mem, stream, zerolog.Nop())
			_, err := ev.Run(ctx)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, stream.Events(), 1)
}

func TestEvaluatorSkipsNonActiveWatches(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutWatch(store.Watch{ID: 1, UserID: 1, ProductID: 1, TargetPrice: decimal.NewFromInt(50), State: store.WatchTriggered})
	mem.PutWatch(store.Watch{ID: 2, UserID: 1, ProductID: 1, TargetPrice: decimal.NewFromInt(50), State: store.WatchCancelled})
	seedObservation(t, mem, 1, "10.00")

	stream := NewStreamNotifier(8)
	ev := New(mem, mem, stream, zerolog.Nop())

	summary, err := ev.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{}, summary)
	require.Empty(t, stream.Events())
}
