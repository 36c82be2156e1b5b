package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	insertObservationSQL = `INSERT INTO price_observations (
        product_id,
        source_id,
        price,
        currency,
        in_stock,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (product_id, source_id, observed_at) DO NOTHING;`

	latestObservationSQL = `SELECT
        product_id, source_id, price, currency, in_stock, observed_at
    FROM price_observations
    WHERE product_id = $1
    ORDER BY in_stock DESC, observed_at DESC, price ASC, source_id ASC
    LIMIT 1;`

	historySQL = `SELECT
        product_id, source_id, price, currency, in_stock, observed_at
    FROM price_observations
    WHERE product_id = $1
      AND observed_at >= $2
      AND observed_at <= $3
    ORDER BY observed_at ASC, source_id ASC;`

	deleteObservationsSQL = `DELETE FROM price_observations o
    WHERE o.observed_at < $1
      AND EXISTS (
        SELECT 1 FROM price_observations n
        WHERE n.product_id = o.product_id
          AND n.observed_at > o.observed_at
      );`

	listTrackedProductsSQL = `SELECT
        p.id, p.name, s.source_id, s.locator
    FROM products p
    JOIN product_sources s ON s.product_id = p.id
    ORDER BY p.id, s.source_id;`

	listActiveWatchesSQL = `SELECT
        id, user_id, product_id, target_price, state, updated_at
    FROM watches
    WHERE state = 'ACTIVE'
    ORDER BY id;`

	triggerWatchSQL = `UPDATE watches
    SET state = 'TRIGGERED', updated_at = now()
    WHERE id = $1 AND state = 'ACTIVE';`

	resetWatchSQL = `UPDATE watches
    SET state = 'ACTIVE', updated_at = now()
    WHERE id = $1 AND state = 'TRIGGERED';`

	cancelWatchSQL = `UPDATE watches
    SET state = 'CANCELLED', updated_at = now()
    WHERE id = $1 AND state <> 'CANCELLED';`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Postgres persists the price history and watch state in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Postgres) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func wrapUnavailable(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	// Non-postgres errors here are connectivity problems.
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// Append inserts an observation; duplicates are insert-or-ignore.
func (s *Postgres) Append(ctx context.Context, obs PriceObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertObservationSQL,
		obs.ProductID,
		obs.SourceID,
		obs.Price.String(),
		obs.Currency,
		obs.InStock,
		obs.ObservedAt.UTC(),
	)
	if execErr != nil {
		return wrapUnavailable("append observation", execErr)
	}
	return nil
}

// Latest returns the current observation for a product, if any exists.
func (s *Postgres) Latest(ctx context.Context, productID int64) (PriceObservation, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceObservation{}, false, err
	}

	row := pool.QueryRow(ctx, latestObservationSQL, productID)
	obs, scanErr := scanObservation(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return PriceObservation{}, false, nil
		}
		return PriceObservation{}, false, wrapUnavailable("latest observation", scanErr)
	}
	return obs, true, nil
}

// History returns an iterator over the window, ascending by observed_at.
func (s *Postgres) History(ctx context.Context, productID int64, w Window) (HistoryIter, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	to := w.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	rows, queryErr := pool.Query(ctx, historySQL, productID, w.From.UTC(), to.UTC())
	if queryErr != nil {
		return nil, wrapUnavailable("query history", queryErr)
	}
	return &pgHistoryIter{rows: rows}, nil
}

// Stats derives window statistics from the history.
func (s *Postgres) Stats(ctx context.Context, productID int64, w Window) (PriceStats, error) {
	iter, err := s.History(ctx, productID, w)
	if err != nil {
		return PriceStats{}, err
	}
	defer iter.Close()
	return statsFromIter(productID, w, iter)
}

// DeleteOlderThan prunes history while preserving each product's newest row.
func (s *Postgres) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteObservationsSQL, cutoff.UTC())
	if execErr != nil {
		return 0, wrapUnavailable("delete observations", execErr)
	}
	return tag.RowsAffected(), nil
}

// ListTracked reads the catalog's products and their source refs.
func (s *Postgres) ListTracked(ctx context.Context) ([]TrackedProduct, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTrackedProductsSQL)
	if queryErr != nil {
		return nil, wrapUnavailable("list tracked products", queryErr)
	}
	defer rows.Close()

	products := make([]TrackedProduct, 0)
	var current *TrackedProduct
	for rows.Next() {
		var (
			id       int64
			name     string
			sourceID string
			locator  string
		)
		if err := rows.Scan(&id, &name, &sourceID, &locator); err != nil {
			return nil, err
		}
		if current == nil || current.ID != id {
			products = append(products, TrackedProduct{ID: id, Name: name})
			current = &products[len(products)-1]
		}
		current.Refs = append(current.Refs, SourceRef{SourceID: sourceID, Locator: locator})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return products, nil
}

// ListActive lists watches that are armed for evaluation.
func (s *Postgres) ListActive(ctx context.Context) ([]Watch, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveWatchesSQL)
	if queryErr != nil {
		return nil, wrapUnavailable("list active watches", queryErr)
	}
	defer rows.Close()

	watches := make([]Watch, 0)
	for rows.Next() {
		var (
			w         Watch
			targetStr string
			state     string
		)
		if err := rows.Scan(&w.ID, &w.UserID, &w.ProductID, &targetStr, &state, &w.UpdatedAt); err != nil {
			return nil, err
		}
		target, convErr := decimal.NewFromString(targetStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse target price: %w", convErr)
		}
		w.TargetPrice = target
		w.State = WatchState(state)
		watches = append(watches, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return watches, nil
}

// TriggerWatch performs the conditional ACTIVE -> TRIGGERED transition.
// The WHERE clause is the compare-and-swap: exactly one concurrent caller
// observes RowsAffected() == 1.
func (s *Postgres) TriggerWatch(ctx context.Context, watchID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, triggerWatchSQL, watchID)
	if execErr != nil {
		return false, wrapUnavailable("trigger watch", execErr)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetWatch re-arms a triggered watch.
func (s *Postgres) ResetWatch(ctx context.Context, watchID int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, resetWatchSQL, watchID); execErr != nil {
		return wrapUnavailable("reset watch", execErr)
	}
	return nil
}

// CancelWatch removes a watch from evaluation.
func (s *Postgres) CancelWatch(ctx context.Context, watchID int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, cancelWatchSQL, watchID); execErr != nil {
		return wrapUnavailable("cancel watch", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts a postgres advisory lock and returns a release func.
func (s *Postgres) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

type pgHistoryIter struct {
	rows pgx.Rows
	obs  PriceObservation
	err  error
}

func (it *pgHistoryIter) Next() bool {
	if it.err != nil || !it.rows.Next() {
		if it.err == nil {
			it.err = it.rows.Err()
		}
		return false
	}
	obs, err := scanObservation(it.rows)
	if err != nil {
		it.err = err
		return false
	}
	it.obs = obs
	return true
}

func (it *pgHistoryIter) Observation() PriceObservation { return it.obs }
func (it *pgHistoryIter) Err() error                    { return it.err }
func (it *pgHistoryIter) Close()                        { it.rows.Close() }

func scanObservation(row pgx.Row) (PriceObservation, error) {
	var (
		obs      PriceObservation
		priceStr string
	)
	if err := row.Scan(
		&obs.ProductID,
		&obs.SourceID,
		&priceStr,
		&obs.Currency,
		&obs.InStock,
		&obs.ObservedAt,
	); err != nil {
		return PriceObservation{}, err
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse price: %w", err)
	}
	obs.Price = price
	return obs, nil
}

var (
	_ ObservationStore = (*Postgres)(nil)
	_ WatchStore       = (*Postgres)(nil)
	_ CatalogReader    = (*Postgres)(nil)
	_ AdvisoryLocker   = (*Postgres)(nil)
)
