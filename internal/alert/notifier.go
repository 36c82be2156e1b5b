package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Event is one trigger crossing. Exactly one event exists per
// ACTIVE -> TRIGGERED transition; delivery (email/push) is external.
type Event struct {
	ID             uuid.UUID       `json:"id"`
	WatchID        int64           `json:"watch_id"`
	UserID         int64           `json:"user_id"`
	ProductID      int64           `json:"product_id"`
	TargetPrice    decimal.Decimal `json:"target_price"`
	TriggeredPrice decimal.Decimal `json:"triggered_price"`
	Currency       string          `json:"currency"`
	SourceID       string          `json:"source_id"`
	ObservedAt     time.Time       `json:"observed_at"`
}

// Notifier receives trigger events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// ErrStreamFull indicates the event stream consumer is not keeping up.
var ErrStreamFull = errors.New("alert: event stream full")

// StreamNotifier exposes events on a buffered channel for the external
// delivery mechanism to consume.
type StreamNotifier struct {
	ch chan Event
}

// NewStreamNotifier constructs a stream with the given buffer size.
func NewStreamNotifier(buffer int) *StreamNotifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &StreamNotifier{ch: make(chan Event, buffer)}
}

// Notify enqueues the event without blocking the evaluator.
func (s *StreamNotifier) Notify(_ context.Context, event Event) error {
	select {
	case s.ch <- event:
		return nil
	default:
		return fmt.Errorf("%w: watch %d", ErrStreamFull, event.WatchID)
	}
}

// Events returns the consumer side of the stream.
func (s *StreamNotifier) Events() <-chan Event {
	return s.ch
}

// LogNotifier records events in the structured log; the default sink when no
// delivery endpoint is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log sink.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify writes one info line per event.
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Info().
		Str("event_id", event.ID.String()).
		Int64("watch_id", event.WatchID).
		Int64("user_id", event.UserID).
		Int64("product_id", event.ProductID).
		Str("target_price", event.TargetPrice.StringFixed(2)).
		Str("triggered_price", event.TriggeredPrice.StringFixed(2)).
		Str("source", event.SourceID).
		Time("observed_at", event.ObservedAt).
		Msg("price alert triggered")
	return nil
}

// WebhookNotifier POSTs events as JSON to the delivery service.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier constructs a webhook sink.
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_webhook").Logger(),
	}
}

// Notify delivers one event; non-2xx responses are errors.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	n.logger.Info().Str("event_id", event.ID.String()).Int64("watch_id", event.WatchID).Msg("alert delivered")
	return nil
}

// Multi fans one event out to several notifiers, returning the first error.
type Multi []Notifier

// Notify delivers the event to every sink.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ Notifier = (*StreamNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (Multi)(nil)
)
