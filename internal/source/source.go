// Package source defines the fetch capability one retailer implements and
// the failure taxonomy the retry controller relies on.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RickyRick89/shopper/internal/store"
)

// ErrorKind splits fetch failures into the two classes that drive retries.
type ErrorKind int

const (
	// KindTransient covers timeouts, 5xx, 429, and malformed-but-retriable
	// responses. Retried with backoff.
	KindTransient ErrorKind = iota
	// KindPermanent covers delisted products, 404, and auth failures.
	// Never retried.
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// FetchError wraps a fetch failure with its retry classification. This
// classification is the single signal the retry controller consults.
type FetchError struct {
	Kind     ErrorKind
	SourceID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.SourceID, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient builds a retriable FetchError.
func Transient(sourceID string, err error) *FetchError {
	return &FetchError{Kind: KindTransient, SourceID: sourceID, Err: err}
}

// Permanent builds a non-retriable FetchError.
func Permanent(sourceID string, err error) *FetchError {
	return &FetchError{Kind: KindPermanent, SourceID: sourceID, Err: err}
}

// IsPermanent reports whether err carries a permanent classification.
// Unclassified errors default to transient.
func IsPermanent(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindPermanent
}

// Source is the capability one retailer adapter implements. Fetch performs a
// single price lookup for the ref and returns a normalised observation with
// every field except ProductID populated.
type Source interface {
	ID() string
	Fetch(ctx context.Context, ref store.SourceRef) (store.PriceObservation, error)
}

// Registry holds the configured source adapters keyed by source id. The
// coordinator is agnostic to how many exist or their internals.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds or replaces an adapter.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.ID()] = s
}

// Get returns the adapter for a source id.
func (r *Registry) Get(sourceID string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[sourceID]
	return s, ok
}

// IDs lists registered source ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
