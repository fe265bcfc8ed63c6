// Package observability provides the Prometheus metrics of the storefront
// API and the gin middleware that records request metrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for AuthAttemptsTotal
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	// AuthAttemptsTotal counts gateway runs by strategy and outcome. The
	// outcome is "success", an auth error kind, or "error".
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_attempts_total",
			Help: "Authentication attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// AuthzDenialsTotal counts requests rejected by a role guard.
	AuthzDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_authz_denials_total",
			Help: "Authorization denials",
		},
		[]string{"route"},
	)

	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ChatConnections tracks open chat websockets.
	ChatConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_chat_connections_active",
			Help: "Active chat connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		AuthAttemptsTotal,
		AuthzDenialsTotal,
		RequestsTotal,
		RequestDuration,
		ChatConnections,
	)
}
