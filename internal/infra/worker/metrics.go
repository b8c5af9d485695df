package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"content-pipeline/internal/pkg/config"
)

// WorkerMetrics are the scheduler-level metrics of the worker. Per-stage and
// resilience metrics live with their components.
type WorkerMetrics struct {
	*config.ConfigMetrics

	RunsTotal            *prometheus.CounterVec
	RunDurationSeconds   prometheus.Histogram
	LastSuccessTimestamp prometheus.Gauge
	DLQRetriedTotal      *prometheus.CounterVec
}

// NewWorkerMetrics registers the worker metrics. Call it once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_pipeline_runs_total",
			Help: "Total number of scheduled pipeline runs by status (success/failure)",
		}, []string{"status"}),

		RunDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_pipeline_run_duration_seconds",
			Help:    "Duration of scheduled pipeline runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}),

		LastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_pipeline_last_success_timestamp",
			Help: "Unix timestamp of the last successful pipeline run",
		}),

		DLQRetriedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_dlq_retried_total",
			Help: "Dead letter jobs retried by the scheduler, by outcome (succeeded/failed)",
		}, []string{"outcome"}),
	}
}

func (m *WorkerMetrics) RecordRun(status string, seconds float64) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.Observe(seconds)
	if status == "success" {
		m.LastSuccessTimestamp.SetToCurrentTime()
	}
}

func (m *WorkerMetrics) RecordDLQRetry(succeeded, failed int) {
	m.DLQRetriedTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	m.DLQRetriedTotal.WithLabelValues("failed").Add(float64(failed))
}
