package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoadAttemptsTotal tracks every resource attempt by result (success, timeout, error)
	LoadAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmup_load_attempts_total",
			Help: "Total number of resource load attempts",
		},
		[]string{"result"},
	)

	// LoadOutcomesTotal tracks terminal per-resource results
	LoadOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmup_load_outcomes_total",
			Help: "Total number of resources that finished loading, by status",
		},
		[]string{"status"},
	)

	// LoadRetriesTotal tracks scheduled retries
	LoadRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warmup_load_retries_total",
			Help: "Total number of retries scheduled after a failed attempt",
		},
	)

	// LoadAttemptLatency tracks single attempt duration
	LoadAttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warmup_load_attempt_seconds",
			Help:    "Resource load attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// ActiveLoaders tracks loaders currently holding a concurrency slot
	ActiveLoaders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warmup_active_loaders",
			Help: "Number of resource loaders currently loading",
		},
	)

	// RunsTotal tracks finished runs by terminal state
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmup_runs_total",
			Help: "Total number of pipeline runs, by terminal state",
		},
		[]string{"state"},
	)

	// RunDuration tracks wall time per run
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warmup_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// LastRunFailedResources tracks failed resources of the most recent run
	LastRunFailedResources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warmup_last_run_failed_resources",
			Help: "Number of resources that failed in the most recent run",
		},
	)

	// DBConnectionPoolUsage tracks run-history database pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warmup_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
