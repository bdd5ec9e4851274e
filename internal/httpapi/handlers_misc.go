package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/clawgate/clawgate/internal/provider"
)

// modelEntry is one element of GET /v1/models' "data" array.
type modelEntry struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	OwnedBy     string `json:"owned_by"`
	Description string `json:"description"`
}

// models implements GET /v1/models: a synthetic "auto" entry plus one
// per configured provider, ordered by configured priority/weight then
// name.
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	names := h.app.Registry.List()
	sort.Slice(names, func(i, j int) bool {
		pi, pj := h.app.Config.Providers[names[i]], h.app.Config.Providers[names[j]]
		if pi.Priority != pj.Priority {
			return pi.Priority > pj.Priority
		}
		if pi.Weight != pj.Weight {
			return pi.Weight > pj.Weight
		}
		return names[i] < names[j]
	})

	data := []modelEntry{{ID: "auto", Object: "model", OwnedBy: "clawgate", Description: "routes to the best configured provider"}}
	for _, name := range names {
		pc := h.app.Config.Providers[name]
		data = append(data, modelEntry{
			ID:          name,
			Object:      "model",
			OwnedBy:     pc.Dialect,
			Description: pc.Model,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   data,
	})
}

// healthEntry mirrors one provider's Snapshot in JSON form.
type healthEntry struct {
	Healthy             bool    `json:"healthy"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	LastError           string  `json:"last_error"`
	AvgLatencyMS        float64 `json:"avg_latency_ms"`
}

// health implements GET /health.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	providers := map[string]healthEntry{}
	for _, name := range h.app.Registry.List() {
		backend, ok := h.app.Registry.Get(name)
		if !ok {
			continue
		}
		providers[name] = snapshotToEntry(backend)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"providers": providers,
	})
}

func snapshotToEntry(backend provider.Provider) healthEntry {
	snap := backend.Health()
	return healthEntry{
		Healthy:             snap.Healthy,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		LastError:           snap.LastError,
		AvgLatencyMS:        snap.AvgLatencyMS,
	}
}

// stats implements GET /api/stats: totals, per-provider summary,
// routing breakdown, a 24-hour hourly series, and a 30-day daily
// series.
func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	if h.app.Metrics == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}

	ctx := r.Context()

	totals, err := h.app.Metrics.GetTotals(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "storage_error")
		return
	}
	providerSummary, err := h.app.Metrics.GetProviderSummary(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "storage_error")
		return
	}
	routingBreakdown, err := h.app.Metrics.GetRoutingBreakdown(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "storage_error")
		return
	}
	hourly, err := h.app.Metrics.GetHourlySeries(ctx, 24)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "storage_error")
		return
	}
	daily, err := h.app.Metrics.GetDailyTotals(ctx, 30)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "storage_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totals":            totals,
		"provider_summary":  providerSummary,
		"routing_breakdown": routingBreakdown,
		"hourly_series":     hourly,
		"daily_totals":      daily,
	})
}

// recent implements GET /api/recent?limit=N.
func (h *handlers) recent(w http.ResponseWriter, r *http.Request) {
	if h.app.Metrics == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}

	limit := atoiOr(r.URL.Query().Get("limit"), 50)
	entries, err := h.app.Metrics.GetRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "storage_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
