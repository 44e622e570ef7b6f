// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the hawkgate server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LookupBuckets defines histogram buckets suited for credential store
// round trips, ranging from 0.5ms to 1s.
var LookupBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hawkgate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hawkgate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AuthOutcomesTotal counts guard decisions by mode and outcome.
	AuthOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hawkgate_auth_outcomes_total",
			Help: "Authentication outcomes",
		},
		[]string{"mode", "outcome"},
	)

	// CredentialLookupDuration records resolver latency by result
	// (found, unknown, error).
	CredentialLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hawkgate_credential_lookup_duration_seconds",
			Help:    "Credential lookup latency",
			Buckets: LookupBuckets,
		},
		[]string{"result"},
	)

	// BewitsMintedTotal counts issued bewits by source (self, operator, cli).
	BewitsMintedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hawkgate_bewits_minted_total",
			Help: "Bewits minted",
		},
		[]string{"source"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hawkgate_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"user"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthOutcomesTotal,
		CredentialLookupDuration,
		BewitsMintedTotal,
		RateLimitRejectedTotal,
	)
}
