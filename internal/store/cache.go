package store

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedObservations layers an LRU over an ObservationStore so the read API
// and the evaluator do not hit the database for every Latest call. Appends
// invalidate the product's entry and advance a per-product generation; a
// read-through populate is discarded when the generation moved while the
// inner read was in flight, so a stale read can never overwrite a newer
// invalidation.
type CachedObservations struct {
	inner ObservationStore
	lru   *lru.Cache[int64, PriceObservation]

	mu   sync.Mutex
	gens map[int64]uint64
}

// NewCachedObservations wraps inner with a latest-price cache of the given size.
func NewCachedObservations(inner ObservationStore, size int) (*CachedObservations, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[int64, PriceObservation](size)
	if err != nil {
		return nil, err
	}
	return &CachedObservations{inner: inner, lru: cache, gens: make(map[int64]uint64)}, nil
}

// Append writes through, then drops the cached latest for the product and
// bumps its generation under the same lock.
func (c *CachedObservations) Append(ctx context.Context, obs PriceObservation) error {
	if err := c.inner.Append(ctx, obs); err != nil {
		return err
	}
	c.mu.Lock()
	c.gens[obs.ProductID]++
	c.lru.Remove(obs.ProductID)
	c.mu.Unlock()
	return nil
}

// Latest serves from cache when possible. Missing products are not cached so
// the first observation becomes visible immediately.
func (c *CachedObservations) Latest(ctx context.Context, productID int64) (PriceObservation, bool, error) {
	if obs, ok := c.lru.Get(productID); ok {
		return obs, true, nil
	}

	c.mu.Lock()
	gen := c.gens[productID]
	c.mu.Unlock()

	obs, found, err := c.inner.Latest(ctx, productID)
	if err != nil || !found {
		return obs, found, err
	}

	c.mu.Lock()
	if c.gens[productID] == gen {
		c.lru.Add(productID, obs)
	}
	c.mu.Unlock()
	return obs, true, nil
}

func (c *CachedObservations) History(ctx context.Context, productID int64, w Window) (HistoryIter, error) {
	return c.inner.History(ctx, productID, w)
}

func (c *CachedObservations) Stats(ctx context.Context, productID int64, w Window) (PriceStats, error) {
	return c.inner.Stats(ctx, productID, w)
}

// DeleteOlderThan passes through; retention never removes a product's newest
// observation, so cached entries stay valid.
func (c *CachedObservations) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return c.inner.DeleteOlderThan(ctx, cutoff)
}

var _ ObservationStore = (*CachedObservations)(nil)
