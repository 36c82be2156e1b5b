package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func sampleEvent() Event {
	return Event{
		ID:             uuid.New(),
		WatchID:        7,
		UserID:         3,
		ProductID:      11,
		TargetPrice:    decimal.NewFromInt(50),
		TriggeredPrice: decimal.RequireFromString("49.99"),
		Currency:       "USD",
		SourceID:       "reverb",
		ObservedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhookNotifierDelivers(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zerolog.Nop())
	event := sampleEvent()
	require.NoError(t, n.Notify(context.Background(), event))
	require.Equal(t, event.WatchID, got.WatchID)
	require.True(t, got.TriggeredPrice.Equal(event.TriggeredPrice))
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zerolog.Nop())
	err := n.Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestStreamNotifierFull(t *testing.T) {
	s := NewStreamNotifier(1)
	require.NoError(t, s.Notify(context.Background(), sampleEvent()))

	err := s.Notify(context.Background(), sampleEvent())
	require.ErrorIs(t, err, ErrStreamFull)
}

func TestMultiReturnsFirstError(t *testing.T) {
	s := NewStreamNotifier(1)
	require.NoError(t, s.Notify(context.Background(), sampleEvent()))

	m := Multi{s, NewLogNotifier(zerolog.Nop())}
	err := m.Notify(context.Background(), sampleEvent())
	require.ErrorIs(t, err, ErrStreamFull)
}
