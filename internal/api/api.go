// Package api exposes the pipeline's read surface to the rest of the
// application: latest price, history, stats, and run summaries.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/RickyRick89/shopper/internal/store"
)

const defaultWindow = 30 * 24 * time.Hour

// RunLister provides recent scrape run summaries.
type RunLister interface {
	RecentRuns(limit int) []store.ScrapeRun
}

// Deps carries the handler dependencies.
type Deps struct {
	Observations store.ObservationStore
	Runs         RunLister
	Registry     *prometheus.Registry
	Logger       zerolog.Logger
}

// NewHandler builds the chi router for the read API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/products/{productID}/latest", handleLatest(deps))
		r.Get("/products/{productID}/history", handleHistory(deps))
		r.Get("/products/{productID}/stats", handleStats(deps))
		r.Get("/runs", handleRuns(deps))
	})

	return r
}

type observationJSON struct {
	ProductID  int64     `json:"product_id"`
	SourceID   string    `json:"source_id"`
	Price      string    `json:"price"`
	Currency   string    `json:"currency"`
	InStock    bool      `json:"in_stock"`
	ObservedAt time.Time `json:"observed_at"`
}

func toObservationJSON(obs store.PriceObservation) observationJSON {
	return observationJSON{
		ProductID:  obs.ProductID,
		SourceID:   obs.SourceID,
		Price:      obs.Price.String(),
		Currency:   obs.Currency,
		InStock:    obs.InStock,
		ObservedAt: obs.ObservedAt,
	}
}

func handleLatest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}

		obs, found, err := deps.Observations.Latest(r.Context(), productID)
		if err != nil {
			deps.Logger.Error().Err(err).Int64("product_id", productID).Msg("latest lookup failed")
			httpError(w, http.StatusInternalServerError, "latest price unavailable")
			return
		}
		if !found {
			httpError(w, http.StatusNotFound, "no observations for product")
			return
		}
		// The observation's own timestamp doubles as the staleness signal.
		writeJSON(w, http.StatusOK, toObservationJSON(obs))
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		window, err := windowParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}

		iter, err := deps.Observations.History(r.Context(), productID, window)
		if err != nil {
			deps.Logger.Error().Err(err).Int64("product_id", productID).Msg("history query failed")
			httpError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		defer iter.Close()

		items := make([]observationJSON, 0)
		for iter.Next() {
			items = append(items, toObservationJSON(iter.Observation()))
		}
		if err := iter.Err(); err != nil {
			deps.Logger.Error().Err(err).Int64("product_id", productID).Msg("history iteration failed")
			httpError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"product_id":   productID,
			"from":         window.From,
			"to":           window.To,
			"observations": items,
		})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := productID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		window, err := windowParam(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}

		stats, err := deps.Observations.Stats(r.Context(), productID, window)
		if err != nil {
			deps.Logger.Error().Err(err).Int64("product_id", productID).Msg("stats query failed")
			httpError(w, http.StatusInternalServerError, "stats unavailable")
			return
		}
		if stats.DataPoints == 0 {
			httpError(w, http.StatusNotFound, "no observations in window")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"product_id":  stats.ProductID,
			"min":         stats.Min.String(),
			"max":         stats.Max.String(),
			"avg":         stats.Avg.String(),
			"current":     stats.Current.String(),
			"trend_pct":   stats.TrendPct.String(),
			"data_points": stats.DataPoints,
			"from":        stats.From,
			"to":          stats.To,
		})
	}
}

func handleRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				httpError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		runs := deps.Runs.RecentRuns(limit)
		out := make([]map[string]any, 0, len(runs))
		for _, run := range runs {
			out = append(out, map[string]any{
				"id":          run.ID.String(),
				"started_at":  run.StartedAt,
				"finished_at": run.FinishedAt,
				"units":       run.Units,
				"succeeded":   run.Succeeded,
				"transient":   run.Transient,
				"permanent":   run.Permanent,
				"skipped":     run.Skipped,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": out})
	}
}

func productID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "productID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", raw)
	}
	return id, nil
}

func windowParam(r *http.Request) (store.Window, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return store.WindowSince(defaultWindow), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return store.Window{}, fmt.Errorf("invalid window %q", raw)
	}
	return store.WindowSince(d), nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
