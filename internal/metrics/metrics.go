// Package metrics holds the Prometheus collectors of the member area.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemur_http_requests_total",
			Help: "HTTP requests served, by route and status.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lemur_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AccessDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemur_access_denied_total",
			Help: "Member-area access denials, by reason.",
		},
		[]string{"reason"},
	)

	SessionInvalidatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemur_session_invalidated_total",
			Help: "Member sessions ended by the request check, by outcome.",
		},
		[]string{"outcome"},
	)

	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemur_logins_total",
			Help: "Login attempts, by method and result.",
		},
		[]string{"method", "result"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lemur_jobs_processed_total",
			Help: "Background jobs processed, by type and result.",
		},
		[]string{"type", "result"},
	)
)
