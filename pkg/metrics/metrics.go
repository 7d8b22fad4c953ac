package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered on the default registry through promauto.

var (
	// HttpRequestsTotal counts HTTP requests by method, path and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgelite_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration measures server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgelite_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// CommitsTotal counts non-empty commits flushed to the backing store.
	CommitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgelite_commits_total",
			Help: "Total number of staged batches flushed to the edge store",
		},
	)

	// CommittedEdgesTotal counts durable edges written by commits.
	CommittedEdgesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgelite_committed_edges_total",
			Help: "Total number of edges inserted by commits",
		},
	)

	// CacheLookupsTotal counts point lookups answered by the staging cache
	// (hit) or by loading from the store first (miss).
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgelite_cache_lookups_total",
			Help: "Point lookups by staging cache outcome",
		},
		[]string{"result"},
	)

	// StoreOperationDuration measures calls into the backing store.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgelite_store_operation_duration_seconds",
			Help:    "Duration of edge store operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		},
		[]string{"op"},
	)

	// InstructionsTotal counts executed instructions by opcode.
	InstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgelite_instructions_total",
			Help: "Total number of interpreted instructions",
		},
		[]string{"opcode"},
	)

	// ActiveSessions tracks open server sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgelite_active_sessions",
			Help: "Number of open sessions holding a staging cache",
		},
	)
)
