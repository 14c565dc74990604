package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Verification metrics
	VerifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocab_auth_verify_total",
			Help: "Total number of verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	VerifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vocab_auth_verify_duration_seconds",
			Help:    "Duration of verification requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Account state transitions
	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vocab_auth_lockouts_total",
			Help: "Total number of accounts locked after repeated failures",
		},
	)

	UnlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vocab_auth_unlocks_total",
			Help: "Total number of administrative unlocks",
		},
	)

	ProvisionedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vocab_auth_provisioned_total",
			Help: "Number of times the administrator record was provisioned",
		},
	)

	// Audit metrics
	AuditAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vocab_auth_audit_append_failures_total",
			Help: "Total number of audit entries that could not be stored",
		},
	)

	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocab_auth_audit_sink_failures_total",
			Help: "Total number of failed audit sink deliveries",
		},
		[]string{"sink"},
	)

	// Per-identity lock metrics
	LockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vocab_auth_identity_lock_wait_seconds",
			Help:    "Time spent waiting for the per-identity lock",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"backend"},
	)

	// HTTP metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocab_auth_requests_total",
			Help: "Total number of action requests",
		},
		[]string{"action", "status"},
	)
)
