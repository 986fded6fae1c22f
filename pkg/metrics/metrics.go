package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curbshare_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "curbshare_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// ClaimConflicts counts pickup-request transitions that lost a
	// compare-and-swap race (claim|unclaim|fulfill|accept_invite).
	ClaimConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curbshare_claim_conflicts_total",
			Help: "Total number of state transitions rejected by the concurrency guard",
		},
		[]string{"operation"},
	)

	// InvitesIssued counts invitations created, by outcome of the email
	// dispatch (sent|failed|disabled).
	InvitesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curbshare_invites_issued_total",
			Help: "Total number of group invitations issued",
		},
		[]string{"delivery"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curbshare_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
