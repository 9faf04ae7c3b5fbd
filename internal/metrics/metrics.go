// Package metrics holds the Prometheus collectors and the per-tier
// latency aggregates that back the monitoring routes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors bundles the gateway's Prometheus instruments. Register once
// per process; the zero value is unusable, construct with New.
type Collectors struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ProviderRequests *prometheus.CounterVec
	CacheSize        prometheus.Gauge
	CacheHitRate     prometheus.Gauge
}

// New registers the gateway collectors with reg. Pass
// prometheus.DefaultRegisterer in production; tests use a private
// registry so parallel packages do not collide.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_requests_total",
			Help: "Evaluated requests by resolving tier and enforcement action.",
		}, []string{"tier", "action"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_request_duration_seconds",
			Help:    "End-to-end evaluation latency by resolving tier.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"tier"}),
		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_provider_requests_total",
			Help: "LLM provider calls by provider name and outcome.",
		}, []string{"provider", "outcome"}),
		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warden_decision_cache_entries",
			Help: "Current decision cache occupancy.",
		}),
		CacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warden_decision_cache_hit_rate",
			Help: "Decision cache hit rate since start.",
		}),
	}
}
