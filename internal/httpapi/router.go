// Package httpapi implements the HTTP surface: the gateway endpoints,
// the attempt-order dispatcher, and the ambient Prometheus /metrics
// endpoint. Handlers take an *app.App pointer rather than reaching for
// package-level state.
package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clawgate/clawgate/internal/app"
)

// NewRouter builds the gateway's full http.Handler: the chat, models,
// health, and stats endpoints plus the ambient /metrics Prometheus
// endpoint, wrapped in request logging and panic recovery.
func NewRouter(a *app.App) http.Handler {
	mux := http.NewServeMux()

	h := &handlers{app: a}

	mux.HandleFunc("POST /v1/chat/completions", h.chatCompletions)
	mux.HandleFunc("GET /v1/models", h.models)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/recent", h.recent)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.Process.Registry, promhttp.HandlerOpts{}))

	return withRecovery(withRequestLogging(a, mux))
}
