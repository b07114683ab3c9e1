package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/pysugar/vertex-nexus/internal/catalog"
	"github.com/pysugar/vertex-nexus/internal/config"
	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/proxy/monitor"
	"github.com/pysugar/vertex-nexus/internal/stats"
	"github.com/pysugar/vertex-nexus/internal/version"
)

// Root handles GET /: a status document describing the running proxy.
func Root(cfg *config.Config, tracker *stats.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := tracker.Snapshot()

		regionsByProvider := map[string][]string{}
		for _, spec := range catalog.Models() {
			if !cfg.ModelEnabled(spec.ID) {
				continue
			}
			seen := map[string]bool{}
			for _, region := range regionsByProvider[string(spec.Provider)] {
				seen[region] = true
			}
			for _, region := range spec.Regions {
				if !seen[region] {
					regionsByProvider[string(spec.Provider)] = append(regionsByProvider[string(spec.Provider)], region)
					seen[region] = true
				}
			}
		}

		doc := map[string]interface{}{
			"name":         "vertex-nexus",
			"version":      version.Version,
			"project":      cfg.ProjectID,
			"defaultModel": cfg.DefaultModel,
			"uptime":       int64(tracker.Uptime().Seconds()),
			"requestCount": snap.RequestCount,
			"port":         snap.Port,
			"regions":      regionsByProvider,
			"endpoints": []string{
				"GET /",
				"GET /health",
				"GET /v1/models",
				"GET /history",
				"POST /v1/chat/completions",
				"POST /v1/completions",
				"POST /v1/messages",
				"POST /v1/images/generations",
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}
}

// Health handles GET /health.
func Health(tracker *stats.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := tracker.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "ok",
			"uptime":       int64(tracker.Uptime().Seconds()),
			"requestCount": snap.RequestCount,
		})
	}
}

// History handles GET /history?limit=N over the request history database.
func History(mon *monitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeOpenAIError(w, http.StatusBadRequest, "limit must be a non-negative integer", "invalid_request_error")
				return
			}
			limit = n
		}

		records, err := mon.Recent(limit)
		if err != nil {
			log.Printf("❌ [%s] History query failed: %v", logging.GetRequestID(r.Context()), err)
			writeOpenAIError(w, http.StatusInternalServerError, "failed to query request history", "proxy_error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"enabled": mon.Enabled(),
			"count":   len(records),
			"data":    records,
		})
	}
}
