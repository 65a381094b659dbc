// Package metrics registers the Prometheus metrics exported by the
// translator. All collectors live on the default registry and are served by
// promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts translate requests by outcome ("hit", "miss",
	// "input_error", "config_error", "upstream_error", "unavailable",
	// "internal_error", "rejected").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afd_translate_requests_total",
			Help: "Total translate requests by outcome.",
		},
		[]string{"outcome"},
	)

	// RequestDuration observes handler latency in seconds, labelled by
	// whether the answer came from cache.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "afd_translate_request_duration_seconds",
			Help:    "Translate request duration in seconds.",
			Buckets: []float64{.001, .005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"cached"},
	)

	// UpstreamDuration observes the latency of each upstream attempt.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "afd_upstream_duration_seconds",
			Help:    "Upstream generation call duration in seconds.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// UpstreamErrors counts failed upstream attempts by provider and kind
	// ("4xx", "5xx", "transport", "empty", "circuit_open").
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afd_upstream_errors_total",
			Help: "Upstream generation failures by kind.",
		},
		[]string{"provider", "kind"},
	)

	// TokensTotal counts tokens consumed upstream by direction ("input", "output").
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afd_upstream_tokens_total",
			Help: "Tokens reported by the upstream provider.",
		},
		[]string{"provider", "direction"},
	)

	// CacheEntries tracks the process-local cache size after each insert.
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "afd_cache_entries",
		Help: "Entries currently held by the in-memory translation cache.",
	})

	// CacheSweptTotal counts entries removed by expiry sweeps.
	CacheSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "afd_cache_swept_entries_total",
		Help: "Expired cache entries removed by sweeps.",
	})

	// CircuitBreakerState tracks the upstream breaker: 0 = closed, 1 = open,
	// 2 = half_open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "afd_circuit_breaker_state",
			Help: "Upstream circuit breaker state (0=closed 1=open 2=half_open).",
		},
		[]string{"provider"},
	)

	// RateLimitRejections counts requests rejected by the rate limiter.
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "afd_rate_limit_rejections_total",
		Help: "Requests rejected by per-client rate limiting.",
	})
)
