package source

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/RickyRick89/shopper/internal/ratelimit"
	"github.com/RickyRick89/shopper/internal/store"
)

// RetryPolicy bounds how a transient fetch failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = 500 * time.Millisecond
	}
	if p.BackoffCap <= 0 {
		p.BackoffCap = 10 * time.Second
	}
	return p
}

// backoff returns base*2^attempt capped, with jitter on the upper half so
// retries from concurrent workers do not align.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BackoffBase << uint(attempt)
	if d > p.BackoffCap || d <= 0 {
		d = p.BackoffCap
	}
	half := d / 2
	return half + rand.N(half+1)
}

// Retrier wraps source fetches with bounded exponential backoff. Permanent
// failures surface immediately; every retry draws a fresh rate-limiter token.
type Retrier struct {
	policy  RetryPolicy
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
}

// NewRetrier constructs a retry controller.
func NewRetrier(policy RetryPolicy, limiter *ratelimit.Limiter, logger zerolog.Logger) *Retrier {
	return &Retrier{
		policy:  policy.withDefaults(),
		limiter: limiter,
		logger:  logger.With().Str("component", "retrier").Logger(),
	}
}

// Fetch performs one logical fetch: up to MaxAttempts tries against the
// source, one FetchAttempt record per try. The returned attempts are always
// populated, including on failure.
func (r *Retrier) Fetch(ctx context.Context, src Source, ref store.SourceRef) (store.PriceObservation, []store.FetchAttempt, error) {
	attempts := make([]store.FetchAttempt, 0, r.policy.MaxAttempts)

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Acquire(ctx, src.ID()); err != nil {
				// No token inside the deadline: the fetch is skipped for
				// this cycle rather than counted as a source failure.
				return store.PriceObservation{}, attempts, err
			}
		}

		start := time.Now()
		obs, err := src.Fetch(ctx, ref)
		latency := time.Since(start)

		record := store.FetchAttempt{
			SourceID: src.ID(),
			Attempt:  attempt,
			Latency:  latency,
		}
		if err == nil {
			record.Outcome = store.AttemptSuccess
			attempts = append(attempts, record)
			return obs, attempts, nil
		}

		record.Error = err.Error()
		if IsPermanent(err) {
			record.Outcome = store.AttemptPermanentFailure
			attempts = append(attempts, record)
			return store.PriceObservation{}, attempts, err
		}
		record.Outcome = store.AttemptTransientFailure
		attempts = append(attempts, record)
		lastErr = err

		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.policy.backoff(attempt - 1)
		r.logger.Debug().
			Str("source", src.ID()).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("transient fetch failure, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return store.PriceObservation{}, attempts, ctx.Err()
		case <-timer.C:
		}
	}

	return store.PriceObservation{}, attempts, lastErr
}
