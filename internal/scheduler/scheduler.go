// Package scheduler drives the pipeline's periodic triggers.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// RunFunc is one trigger's unit of work.
type RunFunc func(ctx context.Context) error

// Marker records the outcome of a trigger's most recent completed run.
type Marker struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

type trigger struct {
	name         string
	interval     time.Duration
	startupDelay time.Duration
	run          RunFunc

	running atomic.Bool
	mu      sync.Mutex
	last    Marker
}

// Scheduler owns a fixed set of independent periodic triggers. A trigger
// never runs concurrently with itself: a firing that finds the previous run
// still executing is skipped. Triggers never block one another, and a failed
// or panicking run does not prevent the next firing.
type Scheduler struct {
	triggers []*trigger
	logger   zerolog.Logger
}

// New constructs a Scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger.With().Str("component", "scheduler").Logger()}
}

// Add registers a named trigger. Must be called before Run.
func (s *Scheduler) Add(name string, interval, startupDelay time.Duration, run RunFunc) {
	if interval <= 0 {
		panic(fmt.Sprintf("scheduler: trigger %s interval must be positive", name))
	}
	s.triggers = append(s.triggers, &trigger{
		name:         name,
		interval:     interval,
		startupDelay: startupDelay,
		run:          run,
	})
}

// Run blocks until ctx is cancelled, firing every trigger on its own cadence.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, t := range s.triggers {
		wg.Add(1)
		go func(t *trigger) {
			defer wg.Done()
			s.loop(ctx, t)
		}(t)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, t *trigger) {
	if t.startupDelay > 0 {
		timer := time.NewTimer(t.startupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, t)
		}
	}
}

// Fire executes a trigger immediately, outside its cadence. Used by the
// one-shot CLI path; the same overlap guard applies.
func (s *Scheduler) Fire(ctx context.Context, name string) error {
	for _, t := range s.triggers {
		if t.name == name {
			s.fire(ctx, t)
			t.mu.Lock()
			defer t.mu.Unlock()
			return t.last.Err
		}
	}
	return fmt.Errorf("scheduler: unknown trigger %s", name)
}

func (s *Scheduler) fire(ctx context.Context, t *trigger) {
	if !t.running.CompareAndSwap(false, true) {
		s.logger.Warn().Str("trigger", t.name).Msg("previous run still executing, firing skipped")
		return
	}
	defer t.running.Store(false)

	marker := Marker{StartedAt: time.Now().UTC()}
	s.logger.Debug().Str("trigger", t.name).Msg("trigger firing")

	marker.Err = s.safeRun(ctx, t)
	marker.FinishedAt = time.Now().UTC()

	if marker.Err != nil && ctx.Err() == nil {
		s.logger.Error().Err(marker.Err).Str("trigger", t.name).Msg("trigger run failed")
	}

	t.mu.Lock()
	t.last = marker
	t.mu.Unlock()
}

// safeRun contains panics so a broken run cannot take down the loop.
func (s *Scheduler) safeRun(ctx context.Context, t *trigger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trigger %s panicked: %v", t.name, r)
		}
	}()
	return t.run(ctx)
}

// LastRuns returns the last completed run marker per trigger.
func (s *Scheduler) LastRuns() map[string]Marker {
	out := make(map[string]Marker, len(s.triggers))
	for _, t := range s.triggers {
		t.mu.Lock()
		out[t.name] = t.last
		t.mu.Unlock()
	}
	return out
}
