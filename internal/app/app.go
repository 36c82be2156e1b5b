package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/RickyRick89/shopper/internal/alert"
	"github.com/RickyRick89/shopper/internal/api"
	"github.com/RickyRick89/shopper/internal/config"
	"github.com/RickyRick89/shopper/internal/ratelimit"
	"github.com/RickyRick89/shopper/internal/scheduler"
	"github.com/RickyRick89/shopper/internal/scrape"
	"github.com/RickyRick89/shopper/internal/service"
	"github.com/RickyRick89/shopper/internal/source"
	"github.com/RickyRick89/shopper/internal/store"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	events *alert.StreamNotifier
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		events: alert.NewStreamNotifier(cfg.Alerting.StreamBuffer),
	}
}

// Events exposes the alert event stream for an embedding delivery consumer.
// Unconsumed events beyond the configured buffer surface as notification
// errors on the evaluator side.
func (a *App) Events() <-chan alert.Event {
	return a.events.Events()
}

// stores bundles the storage interfaces regardless of backend.
type stores struct {
	obs     store.ObservationStore
	watches store.WatchStore
	catalog store.CatalogReader
	locker  store.AdvisoryLocker
	close   func()
}

// openStores wires PostgreSQL when a DSN is configured and falls back to the
// in-memory store otherwise.
func (a *App) openStores(ctx context.Context) (*stores, error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store")
		mem := store.NewMemory()
		return &stores{obs: mem, watches: mem, catalog: mem, close: func() {}}, nil
	}

	pool, err := store.NewPool(ctx, a.Config.Database.DSN, int32(a.Config.Database.MaxOpenConns), int32(a.Config.Database.MinIdleConns))
	if err != nil {
		return nil, err
	}
	pg := store.NewPostgres(pool)
	return &stores{obs: pg, watches: pg, catalog: pg, locker: pg, close: pg.Close}, nil
}

func (a *App) newSources() *source.Registry {
	registry := source.NewRegistry()
	fetch := a.Config.Fetch

	if cfg, ok := a.Config.Sources[source.SourceReverb]; ok && cfg.Enabled {
		registry.Register(source.NewReverb(source.ReverbOptions{
			BaseURL:   cfg.BaseURL,
			Timeout:   fetch.Timeout,
			UserAgent: fetch.UserAgent,
		}, a.Logger))
	}
	if cfg, ok := a.Config.Sources[source.SourceGuitarCenter]; ok && cfg.Enabled {
		registry.Register(source.NewGuitarCenter(source.GuitarCenterOptions{
			BaseURL:   cfg.BaseURL,
			Timeout:   fetch.Timeout,
			UserAgent: fetch.UserAgent,
		}, a.Logger))
	}
	if cfg, ok := a.Config.Sources[source.SourceSweetwater]; ok && cfg.Enabled {
		registry.Register(source.NewSweetwater(source.SweetwaterOptions{
			BaseURL:   cfg.BaseURL,
			Timeout:   fetch.Timeout,
			UserAgent: fetch.UserAgent,
		}, a.Logger))
	}
	return registry
}

func (a *App) newLimiter() *ratelimit.Limiter {
	fallback := ratelimit.Bucket{
		Capacity:     a.Config.Fetch.RateCapacity,
		RefillPerSec: a.Config.Fetch.RateRefillPerSec,
	}
	perSource := make(map[string]ratelimit.Bucket, len(a.Config.Sources))
	for id, cfg := range a.Config.Sources {
		if cfg.RateCapacity > 0 || cfg.RateRefillPerSec > 0 {
			perSource[id] = ratelimit.Bucket{Capacity: cfg.RateCapacity, RefillPerSec: cfg.RateRefillPerSec}
		}
	}
	return ratelimit.New(fallback, perSource)
}

func (a *App) newNotifier() alert.Notifier {
	notifiers := alert.Multi{a.events, alert.NewLogNotifier(a.Logger)}
	if a.Config.Alerting.Webhook.Enabled {
		webhook := a.Config.Alerting.Webhook
		notifiers = append(notifiers, alert.NewWebhookNotifier(webhook.URL, webhook.Timeout, a.Logger))
	}
	return notifiers
}

// pipeline bundles everything one scrape/evaluate/cleanup deployment needs.
type pipeline struct {
	stores  *stores
	obs     store.ObservationStore
	service *service.Service
	metrics *scrape.Metrics
}

func (a *App) buildPipeline(ctx context.Context) (*pipeline, error) {
	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	obs := st.obs
	cached, err := store.NewCachedObservations(obs, a.Config.Cache.LatestSize)
	if err != nil {
		st.close()
		return nil, err
	}
	obs = cached

	metrics := scrape.NewMetrics()
	retrier := source.NewRetrier(source.RetryPolicy{
		MaxAttempts: a.Config.Fetch.MaxAttempts,
		BackoffBase: a.Config.Fetch.BackoffBase,
		BackoffCap:  a.Config.Fetch.BackoffCap,
	}, a.newLimiter(), a.Logger)

	coord := scrape.New(scrape.Options{
		WorkersPerSource: a.Config.Fetch.WorkersPerSource,
	}, st.catalog, obs, a.newSources(), retrier, metrics, a.Logger)

	eval := alert.New(st.watches, obs, a.newNotifier(), a.Logger)

	svc := service.New(service.Options{
		RetentionHorizon: a.Config.Retention.Horizon,
		AdvisoryLockKey:  a.Config.Scheduler.AdvisoryLockKey,
	}, coord, eval, obs, st.locker, metrics, a.Logger)

	return &pipeline{stores: st, obs: obs, service: svc, metrics: metrics}, nil
}

// Run executes the long-running pipeline: scheduler plus read API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := a.buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.stores.close()

	sched := a.newScheduler(p)
	schedCfg := a.Config.Scheduler

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return sched.Run(groupCtx)
	})

	if a.Config.API.Enabled {
		handler := api.NewHandler(api.Deps{
			Observations: p.obs,
			Runs:         p.service,
			Registry:     p.metrics.Registry,
			Logger:       a.Logger,
		})
		server := &http.Server{
			Addr:              a.Config.API.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}

		group.Go(func() error {
			a.Logger.Info().Str("addr", server.Addr).Msg("read API listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	a.Logger.Info().
		Dur("scrape_interval", schedCfg.ScrapeInterval).
		Dur("evaluate_interval", schedCfg.EvaluateInterval).
		Dur("cleanup_interval", schedCfg.CleanupInterval).
		Msg("starting price tracking pipeline")

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pipeline terminated with error")
		return err
	}
	a.Logger.Info().Msg("pipeline stopped")
	return nil
}

// newScheduler registers the pipeline's three triggers on their configured
// cadences.
func (a *App) newScheduler(p *pipeline) *scheduler.Scheduler {
	sched := scheduler.New(a.Logger)
	cfg := a.Config.Scheduler
	sched.Add(service.TriggerScrape, cfg.ScrapeInterval, cfg.StartupDelay, p.service.ScrapeCycle)
	sched.Add(service.TriggerEvaluate, cfg.EvaluateInterval, cfg.StartupDelay, p.service.EvaluateCycle)
	sched.Add(service.TriggerCleanup, cfg.CleanupInterval, cfg.StartupDelay, p.service.CleanupCycle)
	return sched
}

// Check fires one scrape cycle and one alert sweep through the scheduler's
// one-shot path, then reports per-trigger timings.
func (a *App) Check(ctx context.Context) error {
	p, err := a.buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.stores.close()

	sched := a.newScheduler(p)
	if err := sched.Fire(ctx, service.TriggerScrape); err != nil {
		return err
	}
	if err := sched.Fire(ctx, service.TriggerEvaluate); err != nil {
		return err
	}

	for name, marker := range sched.LastRuns() {
		if marker.StartedAt.IsZero() {
			continue
		}
		a.Logger.Info().
			Str("trigger", name).
			Dur("took", marker.FinishedAt.Sub(marker.StartedAt)).
			Msg("trigger completed")
	}
	return nil
}
