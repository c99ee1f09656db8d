package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/market-feed/internal/config"
	"github.com/rickgao/market-feed/internal/feed"
	"github.com/rickgao/market-feed/internal/model"
)

// createHealthHandler serves /health, /debug/snapshot, and the
// Prometheus metrics endpoint.
func createHealthHandler(cfg *config.Config, manager *feed.Manager, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(cfg.Metrics.Path, promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := manager.Snapshot()

		health := struct {
			Status  string                            `json:"status"`
			Ready   bool                              `json:"ready"`
			Sources map[string]model.ConnectionStatus `json:"sources"`
			Stale   []string                          `json:"stale_keys,omitempty"`
		}{
			Ready:   snap.IsReady,
			Sources: snap.ConnectionStatus,
			Stale:   snap.StaleKeys(time.Now(), cfg.Feed.StaleAfter),
		}

		switch {
		case !snap.IsReady:
			health.Status = "unhealthy"
		case len(health.Stale) > 0 || anyImpaired(snap.ConnectionStatus):
			health.Status = "degraded"
		default:
			health.Status = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap := manager.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"taken_at":     snap.TakenAt,
			"ready":        snap.IsReady,
			"index_prices": snap.IndexPrices,
			"tickers":      len(snap.Tickers),
			"sources":      snap.ConnectionStatus,
		})
	})

	return mux
}

// anyImpaired reports whether a source lost or is losing its stream.
// CONNECTING is normal during startup and never counts.
func anyImpaired(statuses map[string]model.ConnectionStatus) bool {
	for _, st := range statuses {
		if st == model.StatusDegraded || st == model.StatusReconnecting {
			return true
		}
	}
	return false
}
