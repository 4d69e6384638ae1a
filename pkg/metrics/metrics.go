// Package metrics exposes Prometheus metrics for resolutions and upstream calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the resolver's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	upstreamTotal      *prometheus.CounterVec
	fallbacksTotal     *prometheus.CounterVec
}

// New creates Metrics registered on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		resolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drs_resolutions_total",
			Help: "Total number of resolutions by provider and outcome",
		}, []string{"provider", "outcome"}),
		resolutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drs_resolution_duration_seconds",
			Help:    "Time taken to resolve a DRS URI",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider"}),
		upstreamTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drs_upstream_requests_total",
			Help: "Total number of upstream calls by call and outcome",
		}, []string{"call", "outcome"}),
		fallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drs_access_url_fallbacks_total",
			Help: "Total number of signed URL fallback attempts",
		}, []string{"provider"}),
	}
}

// ResolutionFinished records one resolution.
func (m *Metrics) ResolutionFinished(provider, outcome string, elapsed time.Duration) {
	m.resolutionsTotal.WithLabelValues(provider, outcome).Inc()
	m.resolutionDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// AccessURLFallback records a fallback signed-URL attempt.
func (m *Metrics) AccessURLFallback(provider string) {
	m.fallbacksTotal.WithLabelValues(provider).Inc()
}

// ObserveUpstream records one upstream call. Its signature matches
// upstream.Observer.
func (m *Metrics) ObserveUpstream(call string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.upstreamTotal.WithLabelValues(call, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
