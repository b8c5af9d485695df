// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Circuit metrics track per-service breaker state
var (
	// CircuitState reports the current phase of each service circuit.
	// 0 = closed, 1 = half-open, 2 = open
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_circuit_state",
			Help: "Current circuit phase per service (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)

	// CircuitTransitionsTotal counts phase transitions by target phase
	CircuitTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuit_transitions_total",
			Help: "Total number of circuit phase transitions",
		},
		[]string{"service", "to"},
	)

	// CircuitRejectionsTotal counts calls denied by an open circuit
	CircuitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuit_rejections_total",
			Help: "Total number of calls rejected by an open circuit",
		},
		[]string{"service"},
	)
)

// Retry metrics track the retry executor
var (
	// RetryAttemptsTotal counts individual attempts by outcome
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_attempts_total",
			Help: "Total number of attempts made by the retry executor",
		},
		[]string{"service", "outcome"}, // outcome: success, failure
	)

	// RetryFallbacksTotal counts fallback invocations by outcome
	RetryFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_fallbacks_total",
			Help: "Total number of fallback invocations",
		},
		[]string{"service", "outcome"},
	)

	// RetryBackoffSeconds measures the backoff delays chosen between attempts
	RetryBackoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resilience_retry_backoff_seconds",
			Help:    "Backoff delay between retry attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9),
		},
	)
)

// Dead letter queue and error log metrics
var (
	// DLQJobs tracks the number of DLQ jobs per status
	DLQJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_dlq_jobs",
			Help: "Number of dead letter queue jobs by status",
		},
		[]string{"status"},
	)

	// DLQEnqueuedTotal counts jobs added to the DLQ per stage
	DLQEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_dlq_enqueued_total",
			Help: "Total number of jobs added to the dead letter queue",
		},
		[]string{"stage"},
	)

	// DLQRetriesTotal counts DLQ replay attempts per stage and result
	DLQRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_dlq_retries_total",
			Help: "Total number of dead letter queue replay attempts",
		},
		[]string{"stage", "result"}, // result: success, failure, exhausted
	)

	// ErrorLogEntriesTotal counts persisted error log entries
	ErrorLogEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_error_log_entries_total",
			Help: "Total number of error log entries by module and severity",
		},
		[]string{"module", "severity"},
	)

	// PipelineHealth reports the last computed health status.
	// 0 = healthy, 1 = warning, 2 = degraded, 3 = critical
	PipelineHealth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilience_pipeline_health",
			Help: "Last computed pipeline health (0=healthy, 1=warning, 2=degraded, 3=critical)",
		},
	)
)

// Pipeline metrics track orchestrator runs
var (
	// StageDuration measures stage execution time
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Pipeline stage execution time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"stage"},
	)

	// StageRunsTotal counts stage executions by result
	StageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_runs_total",
			Help: "Total number of pipeline stage executions",
		},
		[]string{"stage", "result"}, // result: success, degraded, failure
	)
)

// Database metrics track the durable state store
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)
)
