package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by guard and result (success|failure|throttled).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiguard_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"guard", "result"},
	)

	// Lockouts counts throttle lockouts per guard.
	Lockouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiguard_auth_lockouts_total",
			Help: "Total number of login lockouts",
		},
		[]string{"guard"},
	)

	// Verifications counts signed-link verifications by outcome
	// (verified|already_verified|invalid|expired|forbidden).
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiguard_email_verifications_total",
			Help: "Total number of email verification attempts",
		},
		[]string{"guard", "outcome"},
	)

	// RememberLogins counts sessions re-established from a remember cookie.
	RememberLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiguard_remember_logins_total",
			Help: "Total number of silent re-logins from remember cookies",
		},
		[]string{"guard"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multiguard_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
