package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by method (password|google|facebook|refresh) and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "happycat_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "result"},
	)

	// TokensRevoked counts token records flipped to revoked, by scope (all|device|others).
	TokensRevoked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "happycat_tokens_revoked_total",
			Help: "Total number of revoked device tokens",
		},
		[]string{"scope"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "happycat_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// CacheRequests counts cache-aside lookups by collection and outcome (hit|miss|error).
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "happycat_cache_requests_total",
			Help: "Cache-aside lookups by outcome",
		},
		[]string{"collection", "outcome"},
	)

	// Transactions counts owned transactions by outcome (commit|rollback).
	Transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "happycat_transactions_total",
			Help: "Owned database transactions by outcome",
		},
		[]string{"outcome"},
	)

	// AfterCommitFailures counts post-commit hooks that returned an error or panicked.
	AfterCommitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "happycat_after_commit_failures_total",
			Help: "Post-commit side effects that failed",
		},
	)

	// QueueJobs counts background jobs by name and state (enqueued|done|retry|dropped).
	QueueJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "happycat_queue_jobs_total",
			Help: "Background jobs by state",
		},
		[]string{"job", "state"},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "happycat_realtime_connections",
			Help: "Open websocket connections",
		},
	)
)
