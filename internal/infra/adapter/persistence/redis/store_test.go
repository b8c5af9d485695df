package redis_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-pipeline/internal/domain/entity"
	store "content-pipeline/internal/infra/adapter/persistence/redis"
)

func setup(t *testing.T, opts ...store.Option) (*store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := store.NewStore(client, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore_LoadCircuit_UnknownIsClosed(t *testing.T) {
	s, _ := setup(t)

	st, err := s.LoadCircuit(context.Background(), "claude_api")

	require.NoError(t, err)
	assert.Equal(t, entity.NewCircuitState("claude_api"), st)
}

func TestStore_UpdateCircuit_RoundTrip(t *testing.T) {
	s, mr := setup(t, store.WithPrefix("test"))
	ctx := context.Background()
	opened := time.Date(2026, 2, 14, 6, 0, 0, 123456789, time.UTC)

	_, err := s.UpdateCircuit(ctx, "claude_api", func(st *entity.CircuitState) error {
		st.Phase = entity.PhaseOpen
		st.ConsecutiveFailures = 5
		st.OpenedAt = &opened
		st.LastError = "503 upstream"
		st.LastErrorKind = entity.KindUnknown
		return nil
	})
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:circuit:claude_api"))
	members, err := mr.Members("test:circuits")
	require.NoError(t, err)
	assert.Equal(t, []string{"claude_api"}, members)

	got, err := s.LoadCircuit(ctx, "claude_api")
	require.NoError(t, err)
	assert.Equal(t, entity.PhaseOpen, got.Phase)
	assert.Equal(t, 5, got.ConsecutiveFailures)
	require.NotNil(t, got.OpenedAt)
	assert.True(t, opened.Equal(*got.OpenedAt))
	assert.Equal(t, "503 upstream", got.LastError)
}

func TestStore_UpdateCircuit_MutatorErrorPersistsNothing(t *testing.T) {
	s, mr := setup(t)
	abort := errors.New("abort")

	_, err := s.UpdateCircuit(context.Background(), "rss_feeds", func(st *entity.CircuitState) error {
		st.ConsecutiveFailures = 99
		return abort
	})

	assert.ErrorIs(t, err, abort)
	assert.False(t, mr.Exists("pipeline:circuit:rss_feeds"))
}

func TestStore_UpdateCircuit_ConcurrentIncrements(t *testing.T) {
	s, _ := setup(t, store.WithMaxRetries(200))
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateCircuit(ctx, "llm_api", func(st *entity.CircuitState) error {
				st.ConsecutiveFailures++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := s.LoadCircuit(ctx, "llm_api")
	require.NoError(t, err)
	assert.Equal(t, workers, st.ConsecutiveFailures)
}

func TestStore_ListAndDeleteCircuits(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()
	for _, name := range []string{"rss_feeds", "claude_api", "store"} {
		_, err := s.UpdateCircuit(ctx, name, func(st *entity.CircuitState) error { return nil })
		require.NoError(t, err)
	}

	list, err := s.ListCircuits(ctx)
	require.NoError(t, err)
	names := make([]string, len(list))
	for i, st := range list {
		names[i] = st.Service
	}
	assert.Equal(t, []string{"claude_api", "rss_feeds", "store"}, names)

	require.NoError(t, s.DeleteCircuits(ctx, "store"))
	list, _ = s.ListCircuits(ctx)
	assert.Len(t, list, 2)

	require.NoError(t, s.DeleteCircuits(ctx))
	list, _ = s.ListCircuits(ctx)
	assert.Empty(t, list)
}

func TestStore_DLQ(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	jobs, err := s.ListDLQ(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	err = s.UpdateDLQ(ctx, func(jobs []*entity.DeadLetterJob) ([]*entity.DeadLetterJob, error) {
		return append(jobs, &entity.DeadLetterJob{
			ID: "scout-20260214T060000-0001", Stage: "scout", Status: entity.DLQPending, MaxRetries: 3,
		}), nil
	})
	require.NoError(t, err)

	jobs, err = s.ListDLQ(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "scout", jobs[0].Stage)
	assert.Equal(t, 3, jobs[0].MaxRetries)
}

func TestStore_ErrorDays(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()
	day := time.Date(2026, 2, 14, 23, 59, 0, 0, time.UTC)
	prev := day.AddDate(0, 0, -1)

	for _, d := range []time.Time{day, prev} {
		err := s.UpdateErrorDay(ctx, d, func(entries []entity.ErrorLogEntry) ([]entity.ErrorLogEntry, error) {
			return append(entries, entity.ErrorLogEntry{Module: "rss_feeds", Error: "dns"}), nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, store.DefaultErrorDayTTL, mr.TTL("pipeline:errors:2026-02-14"))
	got, err := s.LoadErrorDay(ctx, day)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.DeleteErrorDays(ctx, prev))
	assert.False(t, mr.Exists("pipeline:errors:2026-02-13"))
	assert.True(t, mr.Exists("pipeline:errors:2026-02-14"))

	require.NoError(t, s.DeleteErrorDays(ctx))
	assert.False(t, mr.Exists("pipeline:errors:2026-02-14"))
}

func TestStore_ConnectionError(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := store.NewStore(client)
	defer func() { _ = s.Close() }()

	_, err := s.LoadCircuit(context.Background(), "claude_api")

	assert.Error(t, err)
}
