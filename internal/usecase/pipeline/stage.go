package pipeline

import (
	"context"
	"sync"
	"time"

	"content-pipeline/internal/resilience/retry"
)

// Stage is one step of a pipeline run. Its Action is executed through the
// retry executor under the circuit of Service.
type Stage struct {
	Name     string
	Service  string
	Critical bool
	Policy   retry.Policy

	// Timeout bounds each attempt of Action (and of each fallback).
	// Zero means the attempt is bounded only by the run context.
	Timeout time.Duration

	// DLQMaxRetries overrides the dead letter retry ceiling for this stage.
	DLQMaxRetries int

	Action    retry.Action
	Fallbacks []retry.Action
}

// StageStatus is the outcome of one stage within a run.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageDegraded  StageStatus = "degraded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageResult records how one stage went.
type StageResult struct {
	Name     string        `json:"name"`
	Status   StageStatus   `json:"status"`
	Degraded bool          `json:"degraded"`
	Error    string        `json:"error,omitempty"`
	DLQJobID string        `json:"dlq_job_id,omitempty"`
	Duration time.Duration `json:"duration_ns"`

	// Output is the stage's result, or the cached output of its last
	// successful run when Degraded is set.
	Output any `json:"-"`
}

// RunResult records one pipeline run.
type RunResult struct {
	RunID      string        `json:"run_id"`
	Date       string        `json:"date"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Success    bool          `json:"success"`
	HaltedAt   string        `json:"halted_at,omitempty"`
	Error      string        `json:"error,omitempty"`
	Stages     []StageResult `json:"stages"`
}

// Duration is the wall time of the run.
func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// JobPayload is what a failed stage stores in the dead letter queue.
type JobPayload struct {
	Stage string `json:"stage"`
	RunID string `json:"run_id"`
	Date  string `json:"date"`
}

// Outputs carries stage results forward within one run.
type Outputs struct {
	mu sync.RWMutex
	m  map[string]any
}

func newOutputs(seed map[string]any) *Outputs {
	o := &Outputs{m: make(map[string]any, len(seed))}
	for k, v := range seed {
		o.m[k] = v
	}
	return o
}

func (o *Outputs) set(stage string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[stage] = v
}

// Get returns the output recorded for stage.
func (o *Outputs) Get(stage string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.m[stage]
	return v, ok
}

type outputsKey struct{}

type runDateKey struct{}

func withOutputs(ctx context.Context, o *Outputs) context.Context {
	return context.WithValue(ctx, outputsKey{}, o)
}

// OutputOf returns the output of an earlier stage of the current run.
func OutputOf(ctx context.Context, stage string) (any, bool) {
	o, ok := ctx.Value(outputsKey{}).(*Outputs)
	if !ok {
		return nil, false
	}
	return o.Get(stage)
}

// RunDate returns the run's date (yyyy-mm-dd, UTC), or "" outside a run.
func RunDate(ctx context.Context) string {
	d, _ := ctx.Value(runDateKey{}).(string)
	return d
}
