package scrape

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scrape pipeline.
type Metrics struct {
	Registry      *prometheus.Registry
	AttemptsTotal *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	Appended      prometheus.Counter
	SkippedTotal  *prometheus.CounterVec
	RunsTotal     prometheus.Counter
	AlertsTotal   prometheus.Counter
}

// NewMetrics constructs and registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopper_fetch_attempts_total",
			Help: "Fetch attempts by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopper_fetch_duration_seconds",
			Help:    "Latency of individual fetch attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	appended := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopper_observations_appended_total",
			Help: "Price observations appended to the store.",
		},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopper_fetches_skipped_total",
			Help: "Fetches skipped per source, e.g. rate-limit timeouts.",
		},
		[]string{"source"},
	)
	runs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopper_scrape_runs_total",
			Help: "Completed scrape runs.",
		},
	)
	alerts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopper_alerts_triggered_total",
			Help: "Watch alerts that fired.",
		},
	)

	registry.MustRegister(attempts, fetchDuration, appended, skipped, runs, alerts)

	return &Metrics{
		Registry:      registry,
		AttemptsTotal: attempts,
		FetchDuration: fetchDuration,
		Appended:      appended,
		SkippedTotal:  skipped,
		RunsTotal:     runs,
		AlertsTotal:   alerts,
	}
}

// ObserveAttempt records one fetch attempt.
func (m *Metrics) ObserveAttempt(sourceID, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(sourceID, outcome).Inc()
	m.FetchDuration.Observe(latency.Seconds())
}

// IncAppended counts a stored observation.
func (m *Metrics) IncAppended() {
	if m == nil {
		return
	}
	m.Appended.Inc()
}

// IncSkipped counts a skipped fetch for a source.
func (m *Metrics) IncSkipped(sourceID string) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(sourceID).Inc()
}

// IncRun counts a completed run.
func (m *Metrics) IncRun() {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
}

// IncAlert counts a fired alert.
func (m *Metrics) IncAlert() {
	if m == nil {
		return
	}
	m.AlertsTotal.Inc()
}
