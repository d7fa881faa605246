// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"investimento/internal/cache"
)

// Metrics groups the application collectors around a private registry, so
// several servers (e.g. in tests) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	Projections       *prometheus.CounterVec
	ProjectionMonths  prometheus.Histogram
	CSVExports        *prometheus.CounterVec
	RateLimitRejected prometheus.Counter
}

// New creates and registers all collectors. csvStats, when non-nil, is
// sampled at scrape time for cache gauges.
func New(csvStats func() cache.Stats) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		Projections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projections_total",
			Help: "Projections computed, by outcome",
		}, []string{"outcome"}),
		ProjectionMonths: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "projection_months",
			Help:    "Requested projection length in months",
			Buckets: []float64{0, 12, 60, 120, 240, 480, 1200},
		}),
		CSVExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csv_exports_total",
			Help: "CSV downloads, by cache result",
		}, []string{"cache"}),
		RateLimitRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.Projections,
		m.ProjectionMonths,
		m.CSVExports,
		m.RateLimitRejected,
	)

	if csvStats != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "csv_cache_entries",
				Help: "Current CSV cache entries",
			}, func() float64 { return float64(csvStats().Entries) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "csv_cache_evictions_total",
				Help: "CSV cache size-based evictions",
			}, func() float64 { return float64(csvStats().Evictions) }),
		)
	}
	return m
}

// Registry returns the backing registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
