package metrics

import (
	"time"

	"content-pipeline/internal/domain/entity"
)

// RecordCircuitPhase updates the phase gauge for a service.
func RecordCircuitPhase(service string, phase entity.Phase) {
	CircuitState.WithLabelValues(service).Set(phaseValue(phase))
}

// RecordCircuitTransition records a phase change and updates the gauge.
func RecordCircuitTransition(service string, to entity.Phase) {
	CircuitTransitionsTotal.WithLabelValues(service, to.String()).Inc()
	RecordCircuitPhase(service, to)
}

// RecordCircuitRejection records a call denied by an open circuit.
func RecordCircuitRejection(service string) {
	CircuitRejectionsTotal.WithLabelValues(service).Inc()
}

// RecordRetryAttempt records the outcome of a single executor attempt.
func RecordRetryAttempt(service string, success bool) {
	RetryAttemptsTotal.WithLabelValues(service, outcome(success)).Inc()
}

// RecordFallback records the outcome of a fallback invocation.
func RecordFallback(service string, success bool) {
	RetryFallbacksTotal.WithLabelValues(service, outcome(success)).Inc()
}

// RecordBackoff records a backoff delay chosen by the executor.
func RecordBackoff(delay time.Duration) {
	RetryBackoffSeconds.Observe(delay.Seconds())
}

// RecordDLQEnqueued records a job added to the dead letter queue.
func RecordDLQEnqueued(stage string) {
	DLQEnqueuedTotal.WithLabelValues(stage).Inc()
}

// RecordDLQRetry records a replay result. Result should be one of
// "success", "failure" or "exhausted".
func RecordDLQRetry(stage, result string) {
	DLQRetriesTotal.WithLabelValues(stage, result).Inc()
}

// UpdateDLQCounts sets the per-status job gauges.
// Statuses missing from counts are reset to zero.
func UpdateDLQCounts(counts map[entity.DLQStatus]int) {
	for _, status := range []entity.DLQStatus{entity.DLQPending, entity.DLQCompleted, entity.DLQFailed} {
		DLQJobs.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// RecordErrorLogEntry records a persisted error log entry.
func RecordErrorLogEntry(module string, severity entity.Severity) {
	ErrorLogEntriesTotal.WithLabelValues(module, string(severity)).Inc()
}

// UpdatePipelineHealth sets the health gauge from a computed status.
func UpdatePipelineHealth(status entity.HealthStatus) {
	PipelineHealth.Set(healthValue(status))
}

// RecordStageRun records a pipeline stage execution.
// Result should be one of "success", "degraded" or "failure".
func RecordStageRun(stage, result string, duration time.Duration) {
	StageRunsTotal.WithLabelValues(stage, result).Inc()
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordOperationDuration records the duration of a named store operation.
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func phaseValue(p entity.Phase) float64 {
	switch p {
	case entity.PhaseHalfOpen:
		return 1
	case entity.PhaseOpen:
		return 2
	default:
		return 0
	}
}

func healthValue(s entity.HealthStatus) float64 {
	switch s {
	case entity.HealthWarning:
		return 1
	case entity.HealthDegraded:
		return 2
	case entity.HealthCritical:
		return 3
	default:
		return 0
	}
}
