package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("store: pool not configured")
	// ErrUnavailable indicates the backing store cannot be reached; the
	// current cycle halts but the scheduler keeps firing.
	ErrUnavailable = errors.New("store: unavailable")
)

// HistoryIter walks observations in ascending observed_at order.
// A fresh iterator is obtained from History for every pass.
type HistoryIter interface {
	Next() bool
	Observation() PriceObservation
	Err() error
	Close()
}

// ObservationStore defines operations for the append-only price history.
type ObservationStore interface {
	// Append inserts an observation. Re-delivery of an identical
	// (product_id, source_id, observed_at) tuple is a no-op success.
	Append(ctx context.Context, obs PriceObservation) error
	// Latest returns the highest-observed_at in-stock observation across
	// sources, falling back to any observation if none is in stock. Ties on
	// observed_at are broken by lowest price, then source id.
	Latest(ctx context.Context, productID int64) (PriceObservation, bool, error)
	// History yields observations inside the window, ascending by observed_at.
	History(ctx context.Context, productID int64, w Window) (HistoryIter, error)
	// Stats derives min/max/avg and percent-change trend over the window.
	Stats(ctx context.Context, productID int64, w Window) (PriceStats, error)
	// DeleteOlderThan prunes observations past the retention horizon. The
	// single most recent observation of a product is never deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WatchStore defines operations on user price watches. The pipeline only
// reads watches and writes conditional state transitions back.
type WatchStore interface {
	ListActive(ctx context.Context) ([]Watch, error)
	// TriggerWatch flips ACTIVE -> TRIGGERED. Returns true only for the
	// caller that won the transition; a lost race is a no-op success.
	TriggerWatch(ctx context.Context, watchID int64) (bool, error)
	// ResetWatch re-arms a TRIGGERED watch back to ACTIVE.
	ResetWatch(ctx context.Context, watchID int64) error
	CancelWatch(ctx context.Context, watchID int64) error
}

// CatalogReader exposes the catalog's tracked products to the pipeline.
type CatalogReader interface {
	ListTracked(ctx context.Context) ([]TrackedProduct, error)
}

// AdvisoryLocker exposes cross-process run exclusion helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	if minConns > 0 {
		poolConfig.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}
