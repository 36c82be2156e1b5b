package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WatchState enumerates the lifecycle of a price watch.
type WatchState string

const (
	// WatchActive means the watch is armed and evaluated every cycle.
	WatchActive WatchState = "ACTIVE"
	// WatchTriggered means the alert fired; terminal until the user re-arms.
	WatchTriggered WatchState = "TRIGGERED"
	// WatchCancelled means the user removed the watch.
	WatchCancelled WatchState = "CANCELLED"
)

// SourceRef locates a product on one external source.
type SourceRef struct {
	SourceID string
	Locator  string
}

// TrackedProduct is the pipeline's read-only view of a catalog product.
type TrackedProduct struct {
	ID   int64
	Name string
	Refs []SourceRef
}

// PriceObservation is one timestamped price reading from one source.
// Immutable once written; identified by (ProductID, SourceID, ObservedAt).
type PriceObservation struct {
	ProductID  int64
	SourceID   string
	Price      decimal.Decimal
	Currency   string
	InStock    bool
	ObservedAt time.Time
}

// PriceStats summarises a product's observations over a window.
type PriceStats struct {
	ProductID  int64
	Min        decimal.Decimal
	Max        decimal.Decimal
	Avg        decimal.Decimal
	Current    decimal.Decimal
	TrendPct   decimal.Decimal
	DataPoints int
	From       time.Time
	To         time.Time
}

// Watch is a user's request to be alerted at a target price.
type Watch struct {
	ID          int64
	UserID      int64
	ProductID   int64
	TargetPrice decimal.Decimal
	State       WatchState
	UpdatedAt   time.Time
}

// AttemptOutcome classifies a single fetch try.
type AttemptOutcome string

const (
	AttemptSuccess          AttemptOutcome = "SUCCESS"
	AttemptTransientFailure AttemptOutcome = "TRANSIENT_FAILURE"
	AttemptPermanentFailure AttemptOutcome = "PERMANENT_FAILURE"
)

// FetchAttempt records one try of one logical fetch, kept for observability only.
type FetchAttempt struct {
	RunID     uuid.UUID
	ProductID int64
	SourceID  string
	Attempt   int
	Outcome   AttemptOutcome
	Latency   time.Duration
	Error     string
}

// ScrapeRun summarises one scheduling cycle of the coordinator.
type ScrapeRun struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Units      int
	Succeeded  int
	Transient  int
	Permanent  int
	Skipped    int
}

// Window bounds a history or stats query. Zero To means "now".
type Window struct {
	From time.Time
	To   time.Time
}

// WindowSince returns a window covering the last d up to now.
func WindowSince(d time.Duration) Window {
	now := time.Now().UTC()
	return Window{From: now.Add(-d), To: now}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}
