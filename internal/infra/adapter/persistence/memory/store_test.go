package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-pipeline/internal/domain/entity"
)

func TestStore_LoadCircuit_UnknownServiceIsClosed(t *testing.T) {
	s := NewStore()

	st, err := s.LoadCircuit(context.Background(), "llm_api")

	require.NoError(t, err)
	assert.Equal(t, "llm_api", st.Service)
	assert.Equal(t, entity.PhaseClosed, st.Phase)
	assert.Zero(t, st.ConsecutiveFailures)
}

func TestStore_UpdateCircuit_PersistsMutation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.UpdateCircuit(ctx, "llm_api", func(st *entity.CircuitState) error {
		st.ConsecutiveFailures = 3
		st.LastError = "boom"
		return nil
	})
	require.NoError(t, err)

	got, err := s.LoadCircuit(ctx, "llm_api")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ConsecutiveFailures)
	assert.Equal(t, "boom", got.LastError)
}

func TestStore_UpdateCircuit_ErrorAbortsWrite(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	abort := errors.New("abort")

	_, err := s.UpdateCircuit(ctx, "llm_api", func(st *entity.CircuitState) error {
		st.ConsecutiveFailures = 9
		return abort
	})

	assert.ErrorIs(t, err, abort)
	list, _ := s.ListCircuits(ctx)
	assert.Empty(t, list)
}

func TestStore_LoadCircuit_ReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, _ = s.UpdateCircuit(ctx, "svc", func(st *entity.CircuitState) error {
		st.ConsecutiveFailures = 1
		return nil
	})

	got, _ := s.LoadCircuit(ctx, "svc")
	got.ConsecutiveFailures = 100

	again, _ := s.LoadCircuit(ctx, "svc")
	assert.Equal(t, 1, again.ConsecutiveFailures)
}

func TestStore_UpdateCircuit_ConcurrentIncrementsAreNotLost(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.UpdateCircuit(ctx, "svc", func(st *entity.CircuitState) error {
				st.ConsecutiveFailures++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.LoadCircuit(ctx, "svc")
	assert.Equal(t, 50, got.ConsecutiveFailures)
}

func TestStore_DeleteCircuits(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, _ = s.UpdateCircuit(ctx, name, func(st *entity.CircuitState) error { return nil })
	}

	require.NoError(t, s.DeleteCircuits(ctx, "b"))
	list, _ := s.ListCircuits(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Service)
	assert.Equal(t, "c", list[1].Service)

	require.NoError(t, s.DeleteCircuits(ctx))
	list, _ = s.ListCircuits(ctx)
	assert.Empty(t, list)
}

func TestStore_UpdateDLQ(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.UpdateDLQ(ctx, func(jobs []*entity.DeadLetterJob) ([]*entity.DeadLetterJob, error) {
		return append(jobs, &entity.DeadLetterJob{ID: "scout-1", Stage: "scout", Status: entity.DLQPending, MaxRetries: 3}), nil
	})
	require.NoError(t, err)

	jobs, err := s.ListDLQ(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "scout-1", jobs[0].ID)

	jobs[0].Status = entity.DLQFailed
	again, _ := s.ListDLQ(ctx)
	assert.Equal(t, entity.DLQPending, again[0].Status, "caller mutation must not leak into the store")
}

func TestStore_ErrorDays(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	day := time.Date(2026, 2, 14, 15, 30, 0, 0, time.UTC)

	err := s.UpdateErrorDay(ctx, day, func(entries []entity.ErrorLogEntry) ([]entity.ErrorLogEntry, error) {
		return append(entries, entity.ErrorLogEntry{Module: "llm_api", Timestamp: day}), nil
	})
	require.NoError(t, err)

	got, err := s.LoadErrorDay(ctx, day.Add(-10*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)

	other, _ := s.LoadErrorDay(ctx, day.AddDate(0, 0, 1))
	assert.Empty(t, other)

	require.NoError(t, s.DeleteErrorDays(ctx, day))
	got, _ = s.LoadErrorDay(ctx, day)
	assert.Empty(t, got)
}
