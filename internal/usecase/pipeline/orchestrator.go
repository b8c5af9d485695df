// Package pipeline drives the content pipeline: it runs the configured stages
// strictly in order through the retry executor, parks failed stages in the
// dead letter queue and keeps a short in-memory history of runs.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/observability/logging"
	"content-pipeline/internal/observability/metrics"
	"content-pipeline/internal/observability/slo"
	"content-pipeline/internal/observability/tracing"
	"content-pipeline/internal/resilience/classify"
	"content-pipeline/internal/resilience/dlq"
	"content-pipeline/internal/resilience/retry"
)

const (
	defaultHistoryLimit = 100
	defaultFailureLimit = 50
	statusWindow        = 7 * 24 * time.Hour
	recentFailures      = 5
)

// Executor runs a stage action under its service circuit.
type Executor interface {
	Execute(ctx context.Context, service string, action retry.Action, policy retry.Policy, fallbacks ...retry.Action) (any, error)
}

// DeadLetterSink receives stages that failed for good.
type DeadLetterSink interface {
	Add(ctx context.Context, payload any, reason, stage string, opts ...dlq.AddOption) (string, error)
}

// ErrorRecorder writes run-level failures to the error log.
type ErrorRecorder interface {
	Record(ctx context.Context, module, operation string, err error, kind entity.ErrorKind, severity entity.Severity, details map[string]any) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRunIDs overrides the run ID generator.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newID = next
		}
	}
}

// WithLogger sets the logger. The run ID is attached to every record.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHistoryLimits bounds the run history and the failure list.
func WithHistoryLimits(runs, failures int) Option {
	return func(o *Orchestrator) {
		if runs > 0 {
			o.historyLimit = runs
		}
		if failures > 0 {
			o.failureLimit = failures
		}
	}
}

// Orchestrator runs pipeline stages sequentially.
type Orchestrator struct {
	exec   Executor
	queue  DeadLetterSink
	errs   ErrorRecorder
	stages []Stage
	byName map[string]int

	now          func() time.Time
	newID        func() string
	logger       *slog.Logger
	historyLimit int
	failureLimit int

	mu       sync.Mutex
	cache    map[string]any
	history  []RunResult
	failures []RunResult
}

// NewOrchestrator creates an orchestrator over stages. errs may be nil.
func NewOrchestrator(exec Executor, queue DeadLetterSink, errs ErrorRecorder, stages []Stage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:         exec,
		queue:        queue,
		errs:         errs,
		stages:       stages,
		byName:       make(map[string]int, len(stages)),
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
		logger:       slog.Default(),
		historyLimit: defaultHistoryLimit,
		failureLimit: defaultFailureLimit,
		cache:        make(map[string]any),
	}
	for i, st := range stages {
		o.byName[st.Name] = i
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stages returns the stage names in execution order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, len(o.stages))
	for i, st := range o.stages {
		names[i] = st.Name
	}
	return names
}

// Run executes every stage once, in order.
//
// A failed stage is added to the dead letter queue. A critical failure halts
// the run (remaining stages are skipped) and Run returns an error wrapping
// ErrCriticalStageFailed. A non-critical failure lets the run continue, with
// the stage's last successful output substituted when one exists.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	runID := o.newID()
	started := o.now()
	run := &RunResult{
		RunID:     runID,
		Date:      started.UTC().Format("2006-01-02"),
		StartedAt: started,
		Success:   true,
		Stages:    make([]StageResult, 0, len(o.stages)),
	}

	ctx = logging.ContextWithRunID(ctx, runID)
	ctx = context.WithValue(ctx, runDateKey{}, run.Date)
	ctx = withOutputs(ctx, newOutputs(nil))
	logger := logging.WithRunID(ctx, o.logger)

	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.Run")
	span.SetAttributes(attribute.String("run_id", runID))
	defer span.End()

	logger.Info("pipeline run started", slog.Int("stages", len(o.stages)))

	var runErr error
	for i, st := range o.stages {
		if runErr != nil {
			run.Stages = append(run.Stages, StageResult{Name: st.Name, Status: StageSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("pipeline run interrupted before %s: %w", st.Name, err)
			run.HaltedAt = st.Name
			run.Stages = append(run.Stages, StageResult{Name: st.Name, Status: StageSkipped})
			continue
		}

		res := o.runStage(ctx, logger, st, JobPayload{Stage: st.Name, RunID: runID, Date: run.Date})
		run.Stages = append(run.Stages, res)
		if res.Status != StageSucceeded {
			run.Success = false
		}
		if res.Status == StageFailed && st.Critical {
			run.HaltedAt = st.Name
			runErr = fmt.Errorf("%w: %s: %s", ErrCriticalStageFailed, st.Name, res.Error)
			o.recordHalt(ctx, st, i, res)
		}
	}

	if runErr != nil {
		run.Success = false
		run.Error = runErr.Error()
		span.SetStatus(codes.Error, run.Error)
	}
	run.FinishedAt = o.now()
	o.remember(*run)

	logger.Info("pipeline run finished",
		slog.Bool("success", run.Success),
		slog.String("halted_at", run.HaltedAt),
		slog.Duration("duration", run.Duration()))
	return run, runErr
}

func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, st Stage, payload JobPayload) StageResult {
	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.stage")
	span.SetAttributes(
		attribute.String("stage", st.Name),
		attribute.String("service", st.Service),
		attribute.Bool("critical", st.Critical))
	defer span.End()

	start := o.now()
	out, err := o.exec.Execute(ctx, st.Service, bounded(st.Action, st.Timeout), st.Policy, boundedAll(st.Fallbacks, st.Timeout)...)
	res := StageResult{Name: st.Name, Duration: o.now().Sub(start)}

	if err == nil {
		res.Status = StageSucceeded
		res.Output = out
		o.setCache(st.Name, out)
		setOutput(ctx, st.Name, out)
		metrics.RecordStageRun(st.Name, "success", res.Duration)
		logger.Info("stage succeeded",
			slog.String("stage", st.Name),
			slog.Duration("duration", res.Duration))
		return res
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	res.Status = StageFailed
	res.Error = err.Error()
	res.DLQJobID = o.deadLetter(ctx, logger, st, payload, err)

	if !st.Critical {
		if cached, ok := o.cached(st.Name); ok {
			res.Status = StageDegraded
			res.Degraded = true
			res.Output = cached
			setOutput(ctx, st.Name, cached)
			metrics.RecordStageRun(st.Name, "degraded", res.Duration)
			logger.Warn("stage failed, using previous output",
				slog.String("stage", st.Name),
				slog.Any("error", err))
			return res
		}
	}

	metrics.RecordStageRun(st.Name, "failure", res.Duration)
	logger.Error("stage failed",
		slog.String("stage", st.Name),
		slog.Bool("critical", st.Critical),
		slog.Any("error", err))
	return res
}

func (o *Orchestrator) deadLetter(ctx context.Context, logger *slog.Logger, st Stage, payload JobPayload, cause error) string {
	if o.queue == nil {
		return ""
	}
	// The run context may already be cancelled; the job must still be kept.
	ctx = context.WithoutCancel(ctx)

	var opts []dlq.AddOption
	if st.DLQMaxRetries > 0 {
		opts = append(opts, dlq.WithMaxRetries(st.DLQMaxRetries))
	}
	id, err := o.queue.Add(ctx, payload, cause.Error(), st.Name, opts...)
	if err != nil {
		logger.Error("failed to add stage to dead letter queue",
			slog.String("stage", st.Name),
			slog.Any("error", err))
		if o.errs != nil {
			_ = o.errs.Record(ctx, "pipeline", "dlq_add", err, classify.Classify(err), entity.SeverityError,
				map[string]any{"stage": st.Name, "run_id": payload.RunID})
		}
		return ""
	}
	return id
}

func (o *Orchestrator) recordHalt(ctx context.Context, st Stage, index int, res StageResult) {
	if o.errs == nil {
		return
	}
	err := errors.New(res.Error)
	_ = o.errs.Record(context.WithoutCancel(ctx), "pipeline", "run", err, classify.Classify(err), entity.SeverityCritical,
		map[string]any{
			"stage":          st.Name,
			"run_id":         logging.RunIDFromContext(ctx),
			"skipped_stages": len(o.stages) - index - 1,
		})
}

// RetryStage re-runs the stage named in a dead letter job. Upstream outputs
// are taken from the last successful runs. It has the dlq.Handler shape.
func (o *Orchestrator) RetryStage(ctx context.Context, job *entity.DeadLetterJob) error {
	idx, ok := o.byName[job.Stage]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, job.Stage)
	}
	st := o.stages[idx]

	var payload JobPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode dlq payload for %s: %w", job.Stage, err)
		}
	}
	if payload.RunID != "" {
		ctx = logging.ContextWithRunID(ctx, payload.RunID)
	}
	ctx = context.WithValue(ctx, runDateKey{}, payload.Date)
	ctx = withOutputs(ctx, newOutputs(o.snapshotCache()))

	out, err := o.exec.Execute(ctx, st.Service, bounded(st.Action, st.Timeout), st.Policy, boundedAll(st.Fallbacks, st.Timeout)...)
	if err != nil {
		return err
	}
	o.setCache(st.Name, out)
	return nil
}

// RegisterRetryHandlers binds RetryStage to every stage in reg.
func (o *Orchestrator) RegisterRetryHandlers(reg *dlq.Registry) error {
	for _, st := range o.stages {
		if err := reg.Register(st.Name, o.RetryStage); err != nil {
			return err
		}
	}
	return nil
}

// History returns the most recent runs, oldest first.
func (o *Orchestrator) History() []RunResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]RunResult(nil), o.history...)
}

// Failures returns the most recent runs that did not fully succeed.
func (o *Orchestrator) Failures() []RunResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]RunResult(nil), o.failures...)
}

// Status summarises the last seven days of runs.
type Status struct {
	TotalRuns      int         `json:"total_runs_7d"`
	SuccessCount   int         `json:"success_count"`
	FailureCount   int         `json:"failure_count"`
	SuccessRate    float64     `json:"success_rate"`
	RecentFailures []RunResult `json:"recent_failures"`
	LastRun        *RunResult  `json:"last_run,omitempty"`
}

// Status reports run statistics over the last seven days.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := o.now().Add(-statusWindow)
	st := Status{RecentFailures: []RunResult{}}
	for _, r := range o.history {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		st.TotalRuns++
		if r.Success {
			st.SuccessCount++
			continue
		}
		st.FailureCount++
		st.RecentFailures = append(st.RecentFailures, r)
	}
	if n := len(st.RecentFailures); n > recentFailures {
		st.RecentFailures = st.RecentFailures[n-recentFailures:]
	}
	if st.TotalRuns > 0 {
		st.SuccessRate = float64(int(float64(st.SuccessCount)/float64(st.TotalRuns)*1000+0.5)) / 10
	}
	if n := len(o.history); n > 0 {
		last := o.history[n-1]
		st.LastRun = &last
	}
	return st
}

func (o *Orchestrator) remember(run RunResult) {
	o.mu.Lock()
	o.history = append(o.history, run)
	if n := len(o.history); n > o.historyLimit {
		o.history = append([]RunResult(nil), o.history[n-o.historyLimit:]...)
	}
	if !run.Success {
		o.failures = append(o.failures, run)
		if n := len(o.failures); n > o.failureLimit {
			o.failures = append([]RunResult(nil), o.failures[n-o.failureLimit:]...)
		}
	}
	samples := make([]slo.RunSample, 0, len(o.history))
	for _, r := range o.history {
		samples = append(samples, sample(r))
	}
	o.mu.Unlock()

	slo.Observe(samples)
}

func sample(r RunResult) slo.RunSample {
	s := slo.RunSample{Success: r.Success, Duration: r.Duration()}
	for _, st := range r.Stages {
		if st.Status == StageSkipped {
			continue
		}
		s.Stages++
		if st.Status == StageFailed || st.Status == StageDegraded {
			s.FailedStages++
		}
	}
	return s
}

func (o *Orchestrator) setCache(stage string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache[stage] = v
}

func (o *Orchestrator) cached(stage string) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.cache[stage]
	return v, ok
}

func (o *Orchestrator) snapshotCache() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]any, len(o.cache))
	for k, v := range o.cache {
		out[k] = v
	}
	return out
}

func setOutput(ctx context.Context, stage string, v any) {
	if o, ok := ctx.Value(outputsKey{}).(*Outputs); ok {
		o.set(stage, v)
	}
}

// bounded gives each attempt of action its own deadline.
func bounded(action retry.Action, timeout time.Duration) retry.Action {
	if timeout <= 0 || action == nil {
		return action
	}
	return func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return action(ctx)
	}
}

func boundedAll(actions []retry.Action, timeout time.Duration) []retry.Action {
	out := make([]retry.Action, len(actions))
	for i, a := range actions {
		out[i] = bounded(a, timeout)
	}
	return out
}
