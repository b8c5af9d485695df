package entity

import (
	"encoding/json"
	"time"
)

// DefaultDLQMaxRetries is the retry ceiling given to new dead letter jobs.
const DefaultDLQMaxRetries = 3

// DLQStatus is the lifecycle state of a dead letter job.
type DLQStatus string

const (
	DLQPending   DLQStatus = "pending"
	DLQCompleted DLQStatus = "completed"
	DLQFailed    DLQStatus = "failed"
)

// DeadLetterJob is a unit of work that exhausted its automatic retries.
// Payload is opaque to the resilience layer.
type DeadLetterJob struct {
	ID          string          `json:"id"`
	Stage       string          `json:"stage"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Reason      string          `json:"reason"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	Status      DLQStatus       `json:"status"`
	FailedAt    time.Time       `json:"failed_at"`
	LastRetryAt *time.Time      `json:"last_retry_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Eligible reports whether the job may be picked by a retry pass.
func (j *DeadLetterJob) Eligible() bool {
	return j.Status == DLQPending && j.RetryCount < j.MaxRetries
}

// Exhausted reports whether the job has used its whole retry budget.
func (j *DeadLetterJob) Exhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// Clone returns a deep copy of the job.
func (j *DeadLetterJob) Clone() *DeadLetterJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	c.LastRetryAt = cloneTime(j.LastRetryAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

// RetryStats summarises one DLQ retry pass.
type RetryStats struct {
	Attempted    int `json:"attempted"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	TotalPending int `json:"total_pending"`
}
