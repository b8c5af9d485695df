package main

import (
	"context"
	"log/slog"
	"time"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/infra/worker"
	"content-pipeline/internal/observability/metrics"
	"content-pipeline/internal/resilience/alert"
	"content-pipeline/internal/resilience/health"
	"content-pipeline/internal/usecase/pipeline"
)

type pipelineRunner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

type dlqRetrier interface {
	RetryPending(ctx context.Context, limit int) (entity.RetryStats, error)
	Counts(ctx context.Context) (map[entity.DLQStatus]int, error)
}

type healthReporter interface {
	ComputeHealth(ctx context.Context) (*entity.HealthReport, error)
	SendReport(ctx context.Context, sink alert.Sink) error
}

// job is one scheduled tick: pipeline run, DLQ retry pass, health check.
type job struct {
	logger  *slog.Logger
	cfg     *worker.WorkerConfig
	metrics *worker.WorkerMetrics
	runner  pipelineRunner
	queue   dlqRetrier
	health  healthReporter
	sink    alert.Sink
}

// Run executes the three steps in order. Each step runs even when the
// previous one failed, so a halted pipeline still gets its DLQ and health
// pass. Cancellation of parent stops everything.
func (j *job) Run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, j.cfg.RunTimeout)
	defer cancel()

	j.runPipeline(ctx)
	j.retryDeadLetters(ctx)
	j.checkHealth(ctx)
}

func (j *job) runPipeline(ctx context.Context) {
	start := time.Now()
	j.logger.Info("pipeline run started")

	result, err := j.runner.Run(ctx)
	elapsed := time.Since(start)

	runID := ""
	if result != nil {
		runID = result.RunID
	}
	if err != nil || result == nil || !result.Success {
		j.metrics.RecordRun("failure", elapsed.Seconds())
		j.logger.Error("pipeline run failed",
			slog.String("run_id", runID),
			slog.Duration("duration", elapsed),
			slog.Any("error", err))
		return
	}

	j.metrics.RecordRun("success", elapsed.Seconds())
	j.logger.Info("pipeline run completed",
		slog.String("run_id", runID),
		slog.Duration("duration", elapsed))
}

func (j *job) retryDeadLetters(ctx context.Context) {
	stats, err := j.queue.RetryPending(ctx, j.cfg.DLQRetryLimit)
	if err != nil {
		j.logger.Error("dlq retry pass failed", slog.Any("error", err))
		return
	}
	j.metrics.RecordDLQRetry(stats.Succeeded, stats.Failed)
	if stats.Attempted > 0 {
		j.logger.Info("dlq retry pass completed",
			slog.Int("attempted", stats.Attempted),
			slog.Int("succeeded", stats.Succeeded),
			slog.Int("failed", stats.Failed),
			slog.Int("pending", stats.TotalPending))
	}

	if counts, err := j.queue.Counts(ctx); err == nil {
		metrics.UpdateDLQCounts(counts)
	}
}

func (j *job) checkHealth(ctx context.Context) {
	report, err := j.health.ComputeHealth(ctx)
	if err != nil {
		j.logger.Error("health check failed", slog.Any("error", err))
		return
	}
	metrics.UpdatePipelineHealth(report.Status)
	j.logger.Info("health check completed",
		slog.String("status", string(report.Status)),
		slog.Int("errors_24h", report.TotalErrors24h),
		slog.Any("open_circuits", report.OpenCircuits))

	if health.Healthy(report.Status) || !j.cfg.HealthAlertOnDegraded {
		return
	}
	if err := j.health.SendReport(ctx, j.sink); err != nil {
		j.logger.Error("failed to send health report", slog.Any("error", err))
	}
}
