// Package dlq implements the dead letter queue for pipeline jobs that
// exhausted their automatic retries.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/observability/metrics"
	"content-pipeline/internal/repository"
)

// DefaultRetentionDays is how long completed jobs are kept by Cleanup.
const DefaultRetentionDays = 7

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// AddOption customises a single Add call.
type AddOption func(*entity.DeadLetterJob)

// WithMaxRetries overrides the default retry ceiling for the new job.
func WithMaxRetries(n int) AddOption {
	return func(j *entity.DeadLetterJob) {
		if n > 0 {
			j.MaxRetries = n
		}
	}
}

// Queue is the dead letter queue. All state lives in the ResilienceStore.
type Queue struct {
	store    repository.ResilienceStore
	handlers *Registry
	now      func() time.Time
}

// NewQueue creates a Queue. A nil handler registry behaves as empty.
func NewQueue(store repository.ResilienceStore, handlers *Registry, opts ...Option) *Queue {
	if handlers == nil {
		handlers = NewRegistry()
	}
	q := &Queue{
		store:    store,
		handlers: handlers,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Handlers returns the queue's handler registry.
func (q *Queue) Handlers() *Registry {
	return q.handlers
}

// Add persists a new pending job and returns its ID.
func (q *Queue) Add(ctx context.Context, payload any, reason, stage string, opts ...AddOption) (string, error) {
	if stage == "" {
		return "", &entity.ValidationError{Field: "stage", Message: "stage name is required"}
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return "", fmt.Errorf("encode dlq payload: %w", err)
	}

	now := q.now().UTC()
	job := &entity.DeadLetterJob{
		Stage:      stage,
		Payload:    raw,
		Reason:     reason,
		MaxRetries: entity.DefaultDLQMaxRetries,
		Status:     entity.DLQPending,
		FailedAt:   now,
	}
	for _, opt := range opts {
		opt(job)
	}

	prefix := fmt.Sprintf("%s-%s-", stage, now.Format("20060102T150405"))
	err = q.store.UpdateDLQ(ctx, func(jobs []*entity.DeadLetterJob) ([]*entity.DeadLetterJob, error) {
		seq := 1
		for _, j := range jobs {
			if strings.HasPrefix(j.ID, prefix) {
				seq++
			}
		}
		job.ID = fmt.Sprintf("%s%04d", prefix, seq)
		return append(jobs, job.Clone()), nil
	})
	if err != nil {
		return "", fmt.Errorf("add dlq job: %w", err)
	}

	metrics.RecordDLQEnqueued(stage)
	slog.Warn("job added to dead letter queue",
		slog.String("id", job.ID),
		slog.String("stage", stage),
		slog.String("reason", reason))
	return job.ID, nil
}

// RetryPending re-attempts eligible jobs in FIFO order, at most limit of
// them (limit <= 0 means no cap). Each job's claim is persisted before its
// handler runs, so a crash mid-pass still consumes the attempt. Handler
// panics are recovered and count as failed attempts.
//
// Every claimed job is settled, even when ctx ends mid-pass: jobs not yet
// dispatched are recorded as failed attempts with the context error.
func (q *Queue) RetryPending(ctx context.Context, limit int) (entity.RetryStats, error) {
	var stats entity.RetryStats

	claimed, err := q.claim(ctx, limit)
	if err != nil {
		return stats, err
	}

	settleCtx := context.WithoutCancel(ctx)
	for _, job := range claimed {
		stats.Attempted++
		runErr := ctx.Err()
		if runErr == nil {
			runErr = q.dispatch(ctx, job)
		} else {
			runErr = fmt.Errorf("retry pass interrupted: %w", runErr)
		}
		if err := q.settle(settleCtx, job.ID, runErr); err != nil {
			return stats, err
		}
		if runErr == nil {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}

	counts, err := q.Counts(settleCtx)
	if err != nil {
		return stats, err
	}
	stats.TotalPending = counts[entity.DLQPending]

	if ctx.Err() != nil {
		slog.Warn("dlq retry pass interrupted",
			slog.Int("attempted", stats.Attempted),
			slog.Int("failed", stats.Failed),
			slog.Any("error", ctx.Err()))
	}
	if stats.Attempted > 0 {
		slog.Info("dlq retry pass finished",
			slog.Int("attempted", stats.Attempted),
			slog.Int("succeeded", stats.Succeeded),
			slog.Int("failed", stats.Failed),
			slog.Int("pending", stats.TotalPending))
	}
	return stats, nil
}

// claim takes up to limit eligible jobs and consumes one retry on each.
// Pending jobs that already used their whole budget are moved to failed.
func (q *Queue) claim(ctx context.Context, limit int) ([]*entity.DeadLetterJob, error) {
	var (
		claimed  []*entity.DeadLetterJob
		stranded []string
	)
	err := q.store.UpdateDLQ(ctx, func(jobs []*entity.DeadLetterJob) ([]*entity.DeadLetterJob, error) {
		claimed, stranded = claimed[:0], stranded[:0]
		now := q.now().UTC()
		for _, j := range jobs {
			if j.Status == entity.DLQPending && j.Exhausted() {
				j.Status = entity.DLQFailed
				stranded = append(stranded, j.ID)
				continue
			}
			if limit > 0 && len(claimed) >= limit {
				continue
			}
			if !j.Eligible() {
				continue
			}
			j.RetryCount++
			j.LastRetryAt = entity.TimePtr(now)
			claimed = append(claimed, j.Clone())
		}
		return jobs, nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim dlq jobs: %w", err)
	}
	for _, id := range stranded {
		slog.Error("dlq job failed permanently",
			slog.String("id", id),
			slog.String("reason", "retry budget used without a recorded outcome"))
	}
	return claimed, nil
}

func (q *Queue) dispatch(ctx context.Context, job *entity.DeadLetterJob) (err error) {
	h, ok := q.handlers.Lookup(job.Stage)
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrNoHandler, job.Stage)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("dlq handler panicked",
				slog.String("id", job.ID),
				slog.String("stage", job.Stage),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) settle(ctx context.Context, id string, runErr error) error {
	var (
		stage  string
		result string
	)
	err := q.store.UpdateDLQ(ctx, func(jobs []*entity.DeadLetterJob) ([]*entity.DeadLetterJob, error) {
		for _, j := range jobs {
			if j.ID != id {
				continue
			}
			stage = j.Stage
			switch {
			case runErr == nil:
				j.Status = entity.DLQCompleted
				j.CompletedAt = entity.TimePtr(q.now().UTC())
				result = "success"
			case j.Exhausted():
				j.Status = entity.DLQFailed
				j.Reason = runErr.Error()
				result = "exhausted"
			default:
				j.Reason = runErr.Error()
				result = "failure"
			}
			break
		}
		return jobs, nil
	})
	if err != nil {
		return fmt.Errorf("settle dlq job %s: %w", id, err)
	}
	if result == "" {
		// Removed by an operator while its handler was running.
		return nil
	}

	metrics.RecordDLQRetry(stage, result)
	switch result {
	case "success":
		slog.Info("dlq job completed", slog.String("id", id), slog.String("stage", stage))
	case "exhausted":
		slog.Error("dlq job failed permanently",
			slog.String("id", id),
			slog.String("stage", stage),
			slog.Any("error", runErr))
	default:
		slog.Warn("dlq job retry failed",
			slog.String("id", id),
			slog.String("stage", stage),
			slog.Any("error", runErr))
	}
	return nil
}

// Cleanup removes completed jobs whose completion is older than
// retentionDays (<= 0 means DefaultRetentionDays). Pending and failed jobs
// are never removed automatically.
func (q *Queue) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := q.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	removed := 0
	err := q.store.UpdateDLQ(ctx, func(jobs []*entity.DeadLetterJob) ([]*entity.DeadLetterJob, error) {
		removed = 0
		kept := jobs[:0]
		for _, j := range jobs {
			if j.Status == entity.DLQCompleted && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, j)
		}
		return kept, nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup dlq: %w", err)
	}
	if removed > 0 {
		slog.Info("dlq cleanup removed completed jobs",
			slog.Int("removed", removed),
			slog.Int("retention_days", retentionDays))
	}
	return removed, nil
}

// List returns every job in insertion order.
func (q *Queue) List(ctx context.Context) ([]*entity.DeadLetterJob, error) {
	jobs, err := q.store.ListDLQ(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dlq: %w", err)
	}
	return jobs, nil
}

// Clear removes jobs with the given statuses, or every job when none are given.
func (q *Queue) Clear(ctx context.Context, statuses ...entity.DLQStatus) (int, error) {
	match := make(map[entity.DLQStatus]bool, len(statuses))
	for _, s := range statuses {
		match[s] = true
	}

	removed := 0
	err := q.store.UpdateDLQ(ctx, func(jobs []*entity.DeadLetterJob) ([]*entity.DeadLetterJob, error) {
		removed = 0
		kept := jobs[:0]
		for _, j := range jobs {
			if len(match) == 0 || match[j.Status] {
				removed++
				continue
			}
			kept = append(kept, j)
		}
		return kept, nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear dlq: %w", err)
	}
	slog.Warn("dlq cleared", slog.Int("removed", removed))
	return removed, nil
}

// Counts returns the number of jobs per status and refreshes the DLQ gauges.
func (q *Queue) Counts(ctx context.Context) (map[entity.DLQStatus]int, error) {
	jobs, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[entity.DLQStatus]int{
		entity.DLQPending:   0,
		entity.DLQCompleted: 0,
		entity.DLQFailed:    0,
	}
	for _, j := range jobs {
		counts[j.Status]++
	}
	metrics.UpdateDLQCounts(counts)
	return counts, nil
}

// encodePayload turns an arbitrary payload into opaque JSON.
// Valid JSON bytes are stored as-is.
func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if json.Valid(p) {
			return append(json.RawMessage(nil), p...), nil
		}
	case []byte:
		if json.Valid(p) {
			return append(json.RawMessage(nil), p...), nil
		}
	}
	return json.Marshal(payload)
}
