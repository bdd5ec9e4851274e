package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProcessMetrics is the ambient Prometheus surface describing the
// gateway's own operation - distinct from the durable per-request
// metrics.Store, which records business data (cost, tokens, cache hits)
// rather than process health.
type ProcessMetrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RoutingLayer    *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	ProviderHealthy *prometheus.GaugeVec
}

// NewProcessMetrics builds an isolated registry (never the global
// default registerer, so multiple App instances can coexist in one
// process for tests) and registers every gauge/counter/histogram the
// HTTP surface updates.
func NewProcessMetrics() *ProcessMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &ProcessMetrics{
		Registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clawgate_http_requests_total",
			Help: "Total HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		RoutingLayer: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clawgate_routing_layer_total",
			Help: "Routing decisions by layer.",
		}, []string{"layer"}),
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clawgate_provider_latency_seconds",
			Help:    "Upstream provider call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		ProviderHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clawgate_provider_healthy",
			Help: "1 if the provider is currently considered healthy, else 0.",
		}, []string{"provider"}),
	}
}
