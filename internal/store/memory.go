package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type obsKey struct {
	productID int64
	sourceID  string
	observed  int64
}

// Memory keeps the price history and watch state in process memory. It backs
// DSN-less deployments and tests, with the same conditional-update semantics
// as the PostgreSQL store.
type Memory struct {
	mu       sync.RWMutex
	obs      map[int64][]PriceObservation
	seen     map[obsKey]struct{}
	watches  map[int64]Watch
	products map[int64]TrackedProduct
	order    []int64
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		obs:      make(map[int64][]PriceObservation),
		seen:     make(map[obsKey]struct{}),
		watches:  make(map[int64]Watch),
		products: make(map[int64]TrackedProduct),
	}
}

func keyOf(obs PriceObservation) obsKey {
	return obsKey{
		productID: obs.ProductID,
		sourceID:  obs.SourceID,
		observed:  obs.ObservedAt.UTC().UnixNano(),
	}
}

// Append inserts an observation; duplicates are insert-or-ignore.
func (m *Memory) Append(_ context.Context, obs PriceObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyOf(obs)
	if _, dup := m.seen[key]; dup {
		return nil
	}
	m.seen[key] = struct{}{}

	obs.ObservedAt = obs.ObservedAt.UTC()
	list := m.obs[obs.ProductID]
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].ObservedAt.After(obs.ObservedAt)
	})
	list = append(list, PriceObservation{})
	copy(list[idx+1:], list[idx:])
	list[idx] = obs
	m.obs[obs.ProductID] = list
	return nil
}

// Latest picks the in-stock observation with the highest observed_at,
// falling back to any observation; ties break to the lowest price.
func (m *Memory) Latest(_ context.Context, productID int64) (PriceObservation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  PriceObservation
		found bool
	)
	for _, obs := range m.obs[productID] {
		if !found || betterLatest(obs, best) {
			best = obs
			found = true
		}
	}
	return best, found, nil
}

func betterLatest(a, b PriceObservation) bool {
	if a.InStock != b.InStock {
		return a.InStock
	}
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.After(b.ObservedAt)
	}
	if !a.Price.Equal(b.Price) {
		return a.Price.LessThan(b.Price)
	}
	return a.SourceID < b.SourceID
}

// History returns a restartable iterator over a snapshot of the window.
func (m *Memory) History(_ context.Context, productID int64, w Window) (HistoryIter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make([]PriceObservation, 0)
	for _, obs := range m.obs[productID] {
		if w.Contains(obs.ObservedAt) {
			snapshot = append(snapshot, obs)
		}
	}
	return &sliceHistoryIter{items: snapshot, idx: -1}, nil
}

// Stats derives window statistics from the history.
func (m *Memory) Stats(ctx context.Context, productID int64, w Window) (PriceStats, error) {
	iter, err := m.History(ctx, productID, w)
	if err != nil {
		return PriceStats{}, err
	}
	defer iter.Close()
	return statsFromIter(productID, w, iter)
}

// DeleteOlderThan prunes history while preserving each product's newest row.
func (m *Memory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff = cutoff.UTC()
	var deleted int64
	for productID, list := range m.obs {
		if len(list) == 0 {
			continue
		}
		newest := list[len(list)-1].ObservedAt
		kept := list[:0]
		for _, obs := range list {
			if obs.ObservedAt.Before(cutoff) && obs.ObservedAt.Before(newest) {
				delete(m.seen, keyOf(obs))
				deleted++
				continue
			}
			kept = append(kept, obs)
		}
		m.obs[productID] = kept
	}
	return deleted, nil
}

// PutProduct registers a tracked product; used to mirror catalog data.
func (m *Memory) PutProduct(p TrackedProduct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		m.order = append(m.order, p.ID)
	}
	m.products[p.ID] = p
}

// ListTracked returns the registered products in insertion order.
func (m *Memory) ListTracked(_ context.Context) ([]TrackedProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	products := make([]TrackedProduct, 0, len(m.order))
	for _, id := range m.order {
		products = append(products, m.products[id])
	}
	return products, nil
}

// PutWatch stores or replaces a watch record.
func (m *Memory) PutWatch(w Watch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.State == "" {
		w.State = WatchActive
	}
	m.watches[w.ID] = w
}

// GetWatch returns a watch by id.
func (m *Memory) GetWatch(watchID int64) (Watch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.watches[watchID]
	return w, ok
}

// ListActive lists watches armed for evaluation.
func (m *Memory) ListActive(_ context.Context) ([]Watch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	watches := make([]Watch, 0)
	for _, w := range m.watches {
		if w.State == WatchActive {
			watches = append(watches, w)
		}
	}
	sort.Slice(watches, func(i, j int) bool { return watches[i].ID < watches[j].ID })
	return watches, nil
}

// TriggerWatch performs the conditional ACTIVE -> TRIGGERED transition under
// the store lock; exactly one concurrent caller wins.
func (m *Memory) TriggerWatch(_ context.Context, watchID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[watchID]
	if !ok || w.State != WatchActive {
		return false, nil
	}
	w.State = WatchTriggered
	w.UpdatedAt = time.Now().UTC()
	m.watches[watchID] = w
	return true, nil
}

// ResetWatch re-arms a triggered watch.
func (m *Memory) ResetWatch(_ context.Context, watchID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[watchID]
	if !ok || w.State != WatchTriggered {
		return nil
	}
	w.State = WatchActive
	w.UpdatedAt = time.Now().UTC()
	m.watches[watchID] = w
	return nil
}

// CancelWatch removes a watch from evaluation.
func (m *Memory) CancelWatch(_ context.Context, watchID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[watchID]
	if !ok {
		return nil
	}
	w.State = WatchCancelled
	w.UpdatedAt = time.Now().UTC()
	m.watches[watchID] = w
	return nil
}

type sliceHistoryIter struct {
	items []PriceObservation
	idx   int
}

func (it *sliceHistoryIter) Next() bool {
	if it.idx+1 >= len(it.items) {
		return false
	}
	it.idx++
	return true
}

func (it *sliceHistoryIter) Observation() PriceObservation { return it.items[it.idx] }
func (it *sliceHistoryIter) Err() error                    { return nil }
func (it *sliceHistoryIter) Close()                        {}

var (
	_ ObservationStore = (*Memory)(nil)
	_ WatchStore       = (*Memory)(nil)
	_ CatalogReader    = (*Memory)(nil)
)
