package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/infra/worker"
	"content-pipeline/internal/resilience/alert"
	"content-pipeline/internal/usecase/pipeline"
)

// Registered once per test binary; promauto panics on duplicates.
var testMetrics = worker.NewWorkerMetrics()

type fakeRunner struct {
	result *pipeline.RunResult
	err    error
	calls  int
}

func (f *fakeRunner) Run(context.Context) (*pipeline.RunResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeQueue struct {
	stats  entity.RetryStats
	err    error
	limits []int
}

func (f *fakeQueue) RetryPending(_ context.Context, limit int) (entity.RetryStats, error) {
	f.limits = append(f.limits, limit)
	return f.stats, f.err
}

func (f *fakeQueue) Counts(context.Context) (map[entity.DLQStatus]int, error) {
	return map[entity.DLQStatus]int{entity.DLQPending: f.stats.TotalPending}, nil
}

type fakeHealth struct {
	status entity.HealthStatus
	err    error
	sent   int
}

func (f *fakeHealth) ComputeHealth(context.Context) (*entity.HealthReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entity.HealthReport{Status: f.status, OpenCircuits: []string{}}, nil
}

func (f *fakeHealth) SendReport(ctx context.Context, sink alert.Sink) error {
	f.sent++
	sink.Notify(ctx, "report")
	return nil
}

func newJob(runner *fakeRunner, queue *fakeQueue, h *fakeHealth, alertOnDegraded bool) (*job, *[]string) {
	cfg := worker.DefaultConfig()
	cfg.HealthAlertOnDegraded = alertOnDegraded
	var sent []string
	return &job{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:     &cfg,
		metrics: testMetrics,
		runner:  runner,
		queue:   queue,
		health:  h,
		sink:    alert.Func(func(_ context.Context, text string) { sent = append(sent, text) }),
	}, &sent
}

func TestJob_Run_HealthyRun(t *testing.T) {
	runner := &fakeRunner{result: &pipeline.RunResult{RunID: "run-1", Success: true}}
	queue := &fakeQueue{stats: entity.RetryStats{Attempted: 2, Succeeded: 1, Failed: 1}}
	h := &fakeHealth{status: entity.HealthHealthy}
	j, sent := newJob(runner, queue, h, true)

	before := testutil.ToFloat64(testMetrics.RunsTotal.WithLabelValues("success"))
	retried := testutil.ToFloat64(testMetrics.DLQRetriedTotal.WithLabelValues("succeeded"))

	j.Run(context.Background())

	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, []int{10}, queue.limits)
	assert.Zero(t, h.sent)
	assert.Empty(t, *sent)
	assert.Equal(t, before+1, testutil.ToFloat64(testMetrics.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, retried+1, testutil.ToFloat64(testMetrics.DLQRetriedTotal.WithLabelValues("succeeded")))
}

func TestJob_Run_CriticalFailureStillRetriesAndReports(t *testing.T) {
	runner := &fakeRunner{
		result: &pipeline.RunResult{RunID: "run-2", HaltedAt: "generate"},
		err:    pipeline.ErrCriticalStageFailed,
	}
	queue := &fakeQueue{}
	h := &fakeHealth{status: entity.HealthCritical}
	j, sent := newJob(runner, queue, h, true)

	before := testutil.ToFloat64(testMetrics.RunsTotal.WithLabelValues("failure"))

	j.Run(context.Background())

	assert.Len(t, queue.limits, 1)
	assert.Equal(t, 1, h.sent)
	assert.Equal(t, []string{"report"}, *sent)
	assert.Equal(t, before+1, testutil.ToFloat64(testMetrics.RunsTotal.WithLabelValues("failure")))
}

func TestJob_Run_DegradedAlertDisabled(t *testing.T) {
	h := &fakeHealth{status: entity.HealthDegraded}
	j, _ := newJob(&fakeRunner{result: &pipeline.RunResult{Success: true}}, &fakeQueue{}, h, false)

	j.Run(context.Background())

	assert.Zero(t, h.sent)
}

func TestJob_Run_WarningDoesNotAlert(t *testing.T) {
	h := &fakeHealth{status: entity.HealthWarning}
	j, _ := newJob(&fakeRunner{result: &pipeline.RunResult{Success: true}}, &fakeQueue{}, h, true)

	j.Run(context.Background())

	assert.Zero(t, h.sent)
}

func TestJob_Run_StepErrorsAreContained(t *testing.T) {
	h := &fakeHealth{err: errors.New("store unavailable")}
	queue := &fakeQueue{err: errors.New("store unavailable")}
	j, _ := newJob(&fakeRunner{err: errors.New("boom")}, queue, h, true)

	assert.NotPanics(t, func() { j.Run(context.Background()) })
	assert.Len(t, queue.limits, 1)
	assert.Zero(t, h.sent)
}
