package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure|locked).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopapp_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// SessionsIssued counts sessions admitted per device class.
	SessionsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopapp_sessions_issued_total",
			Help: "Total number of sessions issued",
		},
		[]string{"device"},
	)

	// SessionEvictions counts sessions displaced by the per-user cap, labelled by the victim's device class.
	SessionEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopapp_session_evictions_total",
			Help: "Total number of sessions evicted at capacity",
		},
		[]string{"device"},
	)

	// SessionRotations records refresh attempts by result (success|not_found|expired|error).
	SessionRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopapp_session_rotations_total",
			Help: "Total number of refresh token rotations",
		},
		[]string{"result"},
	)

	SessionInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shopapp_session_invalidations_total",
			Help: "Total number of sessions removed by mass invalidation",
		},
	)

	// RateLimitRejections counts requests refused by the rate limiter per route.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopapp_rate_limit_rejections_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"route"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopapp_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
