// Package service glues the scrape coordinator, alert evaluator, and
// retention sweep onto the scheduler's triggers.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RickyRick89/shopper/internal/alert"
	"github.com/RickyRick89/shopper/internal/scrape"
	"github.com/RickyRick89/shopper/internal/store"
)

// Trigger names used with the scheduler.
const (
	TriggerScrape   = "scrape"
	TriggerEvaluate = "evaluate"
	TriggerCleanup  = "cleanup"
)

const runHistorySize = 32

// Options tune service behaviour.
type Options struct {
	// RetentionHorizon bounds how far back observations are kept.
	RetentionHorizon time.Duration
	// AdvisoryLockKey guards the scrape cycle across processes when a
	// postgres-backed store is in use. Zero disables the lock.
	AdvisoryLockKey int64
}

// Service owns the pipeline's three periodic cycles.
type Service struct {
	opts    Options
	coord   *scrape.Coordinator
	eval    *alert.Evaluator
	obs     store.ObservationStore
	locker  store.AdvisoryLocker
	metrics *scrape.Metrics
	logger  zerolog.Logger

	mu   sync.Mutex
	runs []store.ScrapeRun
}

// New constructs the Service. locker may be nil for in-memory deployments.
func New(opts Options, coord *scrape.Coordinator, eval *alert.Evaluator, obs store.ObservationStore, locker store.AdvisoryLocker, metrics *scrape.Metrics, logger zerolog.Logger) *Service {
	if opts.RetentionHorizon <= 0 {
		opts.RetentionHorizon = 365 * 24 * time.Hour
	}
	return &Service{
		opts:    opts,
		coord:   coord,
		eval:    eval,
		obs:     obs,
		locker:  locker,
		metrics: metrics,
		logger:  logger.With().Str("component", "service").Logger(),
	}
}

// ScrapeCycle runs one coordinator pass, guarded by the advisory lock when
// one is configured so that only a single process scrapes at a time.
func (s *Service) ScrapeCycle(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("scrape cycle skipped, advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	run, runErr := s.coord.Run(ctx)
	s.recordRun(run)
	return runErr
}

// EvaluateCycle runs one alert sweep.
func (s *Service) EvaluateCycle(ctx context.Context) error {
	summary, err := s.eval.Run(ctx)
	if err != nil {
		return err
	}
	for i := 0; i < summary.Triggered; i++ {
		s.metrics.IncAlert()
	}
	return nil
}

// CleanupCycle prunes observations past the retention horizon.
func (s *Service) CleanupCycle(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.opts.RetentionHorizon)
	deleted, err := s.obs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention sweep: %w", err)
	}
	s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("retention sweep finished")
	return nil
}

// RecentRuns returns the most recent scrape run summaries, newest first.
func (s *Service) RecentRuns(limit int) []store.ScrapeRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.runs) {
		limit = len(s.runs)
	}
	out := make([]store.ScrapeRun, 0, limit)
	for i := len(s.runs) - 1; i >= len(s.runs)-limit; i-- {
		out = append(out, s.runs[i])
	}
	return out
}

func (s *Service) recordRun(run store.ScrapeRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	if len(s.runs) > runHistorySize {
		s.runs = s.runs[len(s.runs)-runHistorySize:]
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
