// Package scrape fans price fetches out across sources and collects the
// results into the price store.
package scrape

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/RickyRick89/shopper/internal/ratelimit"
	"github.com/RickyRick89/shopper/internal/source"
	"github.com/RickyRick89/shopper/internal/store"
)

// Options tune coordinator behaviour.
type Options struct {
	// WorkersPerSource bounds parallel fetches independently per source so
	// one slow source cannot starve the others.
	WorkersPerSource int
}

// Coordinator executes one scrape cycle: every tracked (product, source_ref)
// pair, bounded parallelism, partial failure as the normal case.
type Coordinator struct {
	opts    Options
	catalog store.CatalogReader
	obs     store.ObservationStore
	sources *source.Registry
	retrier *source.Retrier
	logger  zerolog.Logger
	metrics *Metrics
}

// New constructs a Coordinator.
func New(opts Options, catalog store.CatalogReader, obs store.ObservationStore, sources *source.Registry, retrier *source.Retrier, metrics *Metrics, logger zerolog.Logger) *Coordinator {
	if opts.WorkersPerSource <= 0 {
		opts.WorkersPerSource = 4
	}
	return &Coordinator{
		opts:    opts,
		catalog: catalog,
		obs:     obs,
		sources: sources,
		retrier: retrier,
		logger:  logger.With().Str("component", "coordinator").Logger(),
		metrics: metrics,
	}
}

type unit struct {
	product store.TrackedProduct
	ref     store.SourceRef
}

type tally struct {
	mu        sync.Mutex
	succeeded int
	transient int
	permanent int
	skipped   int
	storeErr  error
}

func (t *tally) add(outcome store.AttemptOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch outcome {
	case store.AttemptSuccess:
		t.succeeded++
	case store.AttemptTransientFailure:
		t.transient++
	case store.AttemptPermanentFailure:
		t.permanent++
	}
}

func (t *tally) skip() {
	t.mu.Lock()
	t.skipped++
	t.mu.Unlock()
}

func (t *tally) fail(err error) {
	t.mu.Lock()
	if t.storeErr == nil {
		t.storeErr = err
	}
	t.mu.Unlock()
}

// Run executes one scrape cycle and returns its summary. A failing unit never
// aborts the batch; only store unavailability halts the cycle, and already
// appended observations stay intact.
func (c *Coordinator) Run(ctx context.Context) (store.ScrapeRun, error) {
	run := store.ScrapeRun{ID: uuid.New(), StartedAt: time.Now().UTC()}

	products, err := c.catalog.ListTracked(ctx)
	if err != nil {
		return run, err
	}

	bySource := make(map[string][]unit)
	for _, product := range products {
		for _, ref := range product.Refs {
			if _, ok := c.sources.Get(ref.SourceID); !ok {
				c.logger.Warn().Str("source", ref.SourceID).Int64("product", product.ID).Msg("no adapter registered for source ref")
				continue
			}
			bySource[ref.SourceID] = append(bySource[ref.SourceID], unit{product: product, ref: ref})
			run.Units++
		}
	}

	counts := &tally{}
	group, groupCtx := errgroup.WithContext(ctx)
	for sourceID, units := range bySource {
		src, _ := c.sources.Get(sourceID)
		units := units

		group.Go(func() error {
			pool, poolCtx := errgroup.WithContext(groupCtx)
			pool.SetLimit(c.opts.WorkersPerSource)
			for _, u := range units {
				u := u
				pool.Go(func() error {
					return c.fetchOne(poolCtx, run.ID, src, u, counts)
				})
			}
			return pool.Wait()
		})
	}

	waitErr := group.Wait()

	run.FinishedAt = time.Now().UTC()
	counts.mu.Lock()
	run.Succeeded = counts.succeeded
	run.Transient = counts.transient
	run.Permanent = counts.permanent
	run.Skipped = counts.skipped
	storeErr := counts.storeErr
	counts.mu.Unlock()

	c.metrics.IncRun()
	c.logger.Info().
		Str("run_id", run.ID.String()).
		Int("units", run.Units).
		Int("succeeded", run.Succeeded).
		Int("transient", run.Transient).
		Int("permanent", run.Permanent).
		Int("skipped", run.Skipped).
		Dur("duration", run.FinishedAt.Sub(run.StartedAt)).
		Msg("scrape run finished")

	if storeErr != nil {
		return run, storeErr
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return run, waitErr
	}
	return run, ctx.Err()
}

// fetchOne performs one logical fetch and appends the observation. Returning
// a non-nil error cancels the group, so only store failures propagate.
func (c *Coordinator) fetchOne(ctx context.Context, runID uuid.UUID, src source.Source, u unit, counts *tally) error {
	obs, attempts, err := c.retrier.Fetch(ctx, src, u.ref)
	for i := range attempts {
		attempts[i].RunID = runID
		attempts[i].ProductID = u.product.ID
		c.metrics.ObserveAttempt(attempts[i].SourceID, string(attempts[i].Outcome), attempts[i].Latency)
	}

	if err != nil {
		switch {
		case errors.Is(err, ratelimit.ErrAcquireTimeout):
			counts.skip()
			c.metrics.IncSkipped(src.ID())
			c.logger.Debug().Int64("product", u.product.ID).Str("source", src.ID()).Msg("fetch skipped, no rate-limit token")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Cancelled mid-run; in-flight work is abandoned, not rolled back.
		case source.IsPermanent(err):
			counts.add(store.AttemptPermanentFailure)
			c.logger.Warn().Err(err).Int64("product", u.product.ID).Str("source", src.ID()).Msg("permanent fetch failure")
		default:
			counts.add(store.AttemptTransientFailure)
			c.logger.Warn().Err(err).Int64("product", u.product.ID).Str("source", src.ID()).Int("attempts", len(attempts)).Msg("fetch failed after retries")
		}
		return nil
	}

	obs.ProductID = u.product.ID
	if err := c.obs.Append(ctx, obs); err != nil {
		// Store unavailability is fatal for the cycle, not for the product:
		// the previous latest price stays in place.
		counts.fail(err)
		return err
	}
	counts.add(store.AttemptSuccess)
	c.metrics.IncAppended()
	return nil
}
