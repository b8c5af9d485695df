package repository

import (
	"context"
	"time"

	"content-pipeline/internal/domain/entity"
)

// CircuitMutator mutates a freshly loaded circuit record in place.
// Returning an error aborts the update without persisting anything.
type CircuitMutator func(state *entity.CircuitState) error

// DLQMutator receives the whole persisted DLQ collection and returns the
// collection to persist.
type DLQMutator func(jobs []*entity.DeadLetterJob) ([]*entity.DeadLetterJob, error)

// ErrorDayMutator receives one day of error log entries and returns the
// entries to persist for that day.
type ErrorDayMutator func(entries []entity.ErrorLogEntry) ([]entity.ErrorLogEntry, error)

// ResilienceStore owns the three persisted collections of the resilience
// layer: circuit states, the dead letter queue and the daily error log.
//
// Every Update* method is an atomic read-modify-write of a single record:
// the implementation reloads the latest persisted value, hands it to the
// mutator and persists the result before any concurrent update of the same
// record can interleave.
type ResilienceStore interface {
	// LoadCircuit returns the persisted state, or a fresh Closed state when
	// the service has never been recorded.
	LoadCircuit(ctx context.Context, service string) (*entity.CircuitState, error)
	ListCircuits(ctx context.Context) ([]*entity.CircuitState, error)
	UpdateCircuit(ctx context.Context, service string, fn CircuitMutator) (*entity.CircuitState, error)
	// DeleteCircuits removes the named records; no names removes all of them.
	DeleteCircuits(ctx context.Context, services ...string) error

	ListDLQ(ctx context.Context) ([]*entity.DeadLetterJob, error)
	UpdateDLQ(ctx context.Context, fn DLQMutator) error

	LoadErrorDay(ctx context.Context, day time.Time) ([]entity.ErrorLogEntry, error)
	UpdateErrorDay(ctx context.Context, day time.Time, fn ErrorDayMutator) error
	DeleteErrorDays(ctx context.Context, days ...time.Time) error

	Close() error
}
