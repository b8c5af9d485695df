// Package memory provides a process-local ResilienceStore.
// It is used by tests and by single-process deployments that accept losing
// breaker and DLQ state on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/repository"
)

// Store is a thread-safe in-memory implementation of repository.ResilienceStore.
// A single mutex serialises every read-modify-write, which gives the same
// per-record atomicity as the durable adapters.
type Store struct {
	mu       sync.Mutex
	circuits map[string]*entity.CircuitState
	dlq      []*entity.DeadLetterJob
	errors   map[string][]entity.ErrorLogEntry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		circuits: make(map[string]*entity.CircuitState),
		errors:   make(map[string][]entity.ErrorLogEntry),
	}
}

var _ repository.ResilienceStore = (*Store)(nil)

func (s *Store) LoadCircuit(ctx context.Context, service string) (*entity.CircuitState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.circuits[service]; ok {
		return st.Clone(), nil
	}
	return entity.NewCircuitState(service), nil
}

func (s *Store) ListCircuits(ctx context.Context) ([]*entity.CircuitState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.CircuitState, 0, len(s.circuits))
	for _, st := range s.circuits {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

func (s *Store) UpdateCircuit(ctx context.Context, service string, fn repository.CircuitMutator) (*entity.CircuitState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.circuits[service]
	var working *entity.CircuitState
	if ok {
		working = current.Clone()
	} else {
		working = entity.NewCircuitState(service)
	}
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Service = service
	s.circuits[service] = working.Clone()
	return working, nil
}

func (s *Store) DeleteCircuits(ctx context.Context, services ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(services) == 0 {
		s.circuits = make(map[string]*entity.CircuitState)
		return nil
	}
	for _, name := range services {
		delete(s.circuits, name)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context) ([]*entity.DeadLetterJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneJobs(s.dlq), nil
}

func (s *Store) UpdateDLQ(ctx context.Context, fn repository.DLQMutator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(cloneJobs(s.dlq))
	if err != nil {
		return err
	}
	s.dlq = cloneJobs(next)
	return nil
}

func (s *Store) LoadErrorDay(ctx context.Context, day time.Time) ([]entity.ErrorLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.errors[entity.DayKey(day)]), nil
}

func (s *Store) UpdateErrorDay(ctx context.Context, day time.Time, fn repository.ErrorDayMutator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entity.DayKey(day)
	next, err := fn(cloneEntries(s.errors[key]))
	if err != nil {
		return err
	}
	s.errors[key] = cloneEntries(next)
	return nil
}

func (s *Store) DeleteErrorDays(ctx context.Context, days ...time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(days) == 0 {
		s.errors = make(map[string][]entity.ErrorLogEntry)
		return nil
	}
	for _, d := range days {
		delete(s.errors, entity.DayKey(d))
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func cloneJobs(jobs []*entity.DeadLetterJob) []*entity.DeadLetterJob {
	out := make([]*entity.DeadLetterJob, 0, len(jobs))
	for _, j := range jobs {
		if j != nil {
			out = append(out, j.Clone())
		}
	}
	return out
}

func cloneEntries(entries []entity.ErrorLogEntry) []entity.ErrorLogEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]entity.ErrorLogEntry, len(entries))
	copy(out, entries)
	return out
}
