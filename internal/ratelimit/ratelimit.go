// Package ratelimit gates outbound fetches with per-source token buckets.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ErrAcquireTimeout indicates the caller's deadline elapsed before a token
// became available. The coordinator treats it as a skipped fetch, not a
// pipeline failure.
var ErrAcquireTimeout = errors.New("ratelimit: token acquire timed out")

// Bucket describes one source's token budget.
type Bucket struct {
	Capacity     int
	RefillPerSec float64
}

// Limiter holds one continuously refilled token bucket per source. Tokens
// are shared across all concurrent fetches for that source.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	perSrc   map[string]Bucket
	fallback Bucket
}

// New constructs a Limiter. perSource overrides the fallback bucket for
// individual sources.
func New(fallback Bucket, perSource map[string]Bucket) *Limiter {
	if fallback.Capacity <= 0 {
		fallback.Capacity = 1
	}
	if fallback.RefillPerSec <= 0 {
		fallback.RefillPerSec = 1
	}
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		perSrc:   perSource,
		fallback: fallback,
	}
}

func (l *Limiter) bucket(sourceID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[sourceID]; ok {
		return b
	}
	cfg := l.fallback
	if override, ok := l.perSrc[sourceID]; ok {
		if override.Capacity > 0 {
			cfg.Capacity = override.Capacity
		}
		if override.RefillPerSec > 0 {
			cfg.RefillPerSec = override.RefillPerSec
		}
	}
	b := rate.NewLimiter(rate.Limit(cfg.RefillPerSec), cfg.Capacity)
	l.buckets[sourceID] = b
	return b
}

// Acquire blocks cooperatively until a token for the source is available or
// the context deadline elapses. A retry is a new request and must call
// Acquire again.
//
// An expired or cancelled context propagates as the context's own error so
// callers can tell an abandoned run from a throttled fetch; ErrAcquireTimeout
// is reserved for a live context whose deadline cannot fit the token wait.
func (l *Limiter) Acquire(ctx context.Context, sourceID string) error {
	if err := l.bucket(sourceID).Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: source %s: %v", ErrAcquireTimeout, sourceID, err)
	}
	return nil
}
