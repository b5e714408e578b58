// Package metrics defines the Prometheus collectors of the search service
// and the scrape endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. Build one per registry with New.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount *prometheus.HistogramVec
	FallbackTotal      prometheus.Counter

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	LSAGeneration       prometheus.Gauge
	LSARebuildsTotal    *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Search queries by ranking method (method1, method2_fallback, none, lsa, error).",
			},
			[]string{"method"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds by mode and cache status.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode", "cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search.",
				Buckets: []float64{0, 1, 5, 10, 20, 30},
			},
			[]string{"mode"},
		),
		FallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "search_fallback_total",
			Help: "Queries answered by thesaurus expansion after direct boosting found nothing.",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of result cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of result cache misses.",
		}),
		LSAGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lsa_model_generation",
			Help: "Generation of the LSA model currently served. Zero before the first load.",
		}),
		LSARebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lsa_reloads_total",
				Help: "LSA bundle loads by outcome.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimitedTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.FallbackTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.LSAGeneration,
		m.LSARebuildsTotal,
		m.CircuitBreakerState,
	)
	return m
}

// Handler serves the given gatherer, or the default registry when nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
