// Package alert evaluates user price watches against the latest observations
// and fires each trigger crossing exactly once.
package alert

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RickyRick89/shopper/internal/store"
)

// LatestReader is the slice of the observation store the evaluator needs.
type LatestReader interface {
	Latest(ctx context.Context, productID int64) (store.PriceObservation, bool, error)
}

// Summary reports one evaluation sweep.
type Summary struct {
	Checked    int
	Triggered  int
	RaceLosses int
	Errors     int
}

// Evaluator sweeps ACTIVE watches. The ACTIVE -> TRIGGERED transition is a
// conditional update in the watch store, so overlapping sweeps on the same
// watch produce exactly one notification: only the run that wins the
// transition emits it.
type Evaluator struct {
	watches  store.WatchStore
	latest   LatestReader
	notifier Notifier
	logger   zerolog.Logger
}

// New constructs an Evaluator.
func New(watches store.WatchStore, latest LatestReader, notifier Notifier, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		watches:  watches,
		latest:   latest,
		notifier: notifier,
		logger:   logger.With().Str("component", "evaluator").Logger(),
	}
}

// Run evaluates every ACTIVE watch once. Per-watch failures are isolated and
// logged; only a watch-store listing failure aborts the sweep.
func (e *Evaluator) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	watches, err := e.watches.ListActive(ctx)
	if err != nil {
		return summary, err
	}

	for _, w := range watches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++

		obs, found, err := e.latest.Latest(ctx, w.ProductID)
		if err != nil {
			summary.Errors++
			e.logger.Error().Err(err).Int64("watch_id", w.ID).Int64("product_id", w.ProductID).Msg("latest price lookup failed")
			continue
		}
		if !found {
			continue
		}
		// Strict decimal comparison, no epsilon.
		if obs.Price.GreaterThan(w.TargetPrice) {
			continue
		}

		won, err := e.watches.TriggerWatch(ctx, w.ID)
		if err != nil {
			summary.Errors++
			e.logger.Error().Err(err).Int64("watch_id", w.ID).Msg("trigger transition failed")
			continue
		}
		if !won {
			// A concurrent sweep flipped the state first; no-op success.
			summary.RaceLosses++
			continue
		}

		summary.Triggered++
		event := Event{
			ID:             uuid.New(),
			WatchID:        w.ID,
			UserID:         w.UserID,
			ProductID:      w.ProductID,
			TargetPrice:    w.TargetPrice,
			TriggeredPrice: obs.Price,
			Currency:       obs.Currency,
			SourceID:       obs.SourceID,
			ObservedAt:     obs.ObservedAt,
		}
		if e.notifier != nil {
			if err := e.notifier.Notify(ctx, event); err != nil {
				summary.Errors++
				e.logger.Error().Err(err).Int64("watch_id", w.ID).Msg("alert notification failed")
			}
		}
	}

	e.logger.Info().
		Int("checked", summary.Checked).
		Int("triggered", summary.Triggered).
		Int("race_losses", summary.RaceLosses).
		Int("errors", summary.Errors).
		Msg("alert sweep finished")
	return summary, nil
}
