package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RickyRick89/shopper/internal/alert"
	"github.com/RickyRick89/shopper/internal/config"
)

func TestNotifierFeedsEventStream(t *testing.T) {
	cfg := &config.Config{}
	cfg.Alerting.StreamBuffer = 4
	a := NewApp(cfg, zerolog.Nop())

	n := a.newNotifier()
	event := alert.Event{ID: uuid.New(), WatchID: 5, ProductID: 9}
	require.NoError(t, n.Notify(context.Background(), event))

	select {
	case got := <-a.Events():
		require.Equal(t, int64(5), got.WatchID)
		require.Equal(t, int64(9), got.ProductID)
	default:
		t.Fatal("expected the event on the stream")
	}
}

func TestEventStreamBounded(t *testing.T) {
	cfg := &config.Config{}
	cfg.Alerting.StreamBuffer = 1
	a := NewApp(cfg, zerolog.Nop())

	n := a.newNotifier()
	require.NoError(t, n.Notify(context.Background(), alert.Event{ID: uuid.New()}))

	// A full stream surfaces as a notification error without blocking.
	err := n.Notify(context.Background(), alert.Event{ID: uuid.New()})
	require.ErrorIs(t, err, alert.ErrStreamFull)
}
