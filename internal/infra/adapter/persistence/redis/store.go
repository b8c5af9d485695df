// Package redis provides a ResilienceStore backed by Redis.
//
// Keys:
//
//	<prefix>:circuit:<service>    JSON CircuitState
//	<prefix>:circuits             set of known services
//	<prefix>:dlq                  JSON array of DeadLetterJob
//	<prefix>:errors:<yyyy-mm-dd>  JSON array of ErrorLogEntry, expires after ErrorDayTTL
//
// Updates use WATCH + MULTI and retry on conflicting writes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/observability/metrics"
	"content-pipeline/internal/repository"
	"content-pipeline/pkg/config"
)

const (
	DefaultPrefix      = "pipeline"
	DefaultMaxRetries  = 10
	DefaultErrorDayTTL = 30 * 24 * time.Hour
)

// ErrConflict is returned when an update keeps losing the optimistic lock.
var ErrConflict = errors.New("redis store: too many concurrent updates")

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds optimistic-lock retries per update.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithErrorDayTTL sets the expiry of error log day keys.
func WithErrorDayTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.errorTTL = ttl
		}
	}
}

// Store implements repository.ResilienceStore.
type Store struct {
	client     goredis.UniversalClient
	prefix     string
	maxRetries int
	errorTTL   time.Duration
}

var _ repository.ResilienceStore = (*Store)(nil)

// NewStore wraps an existing client.
func NewStore(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:     client,
		prefix:     DefaultPrefix,
		maxRetries: DefaultMaxRetries,
		errorTTL:   DefaultErrorDayTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewClientFromEnv connects using REDIS_ADDR, REDIS_PASSWORD, REDIS_DB and
// REDIS_DIAL_TIMEOUT and verifies the connection with PING.
func NewClientFromEnv(ctx context.Context) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        config.GetEnvString("REDIS_ADDR", "localhost:6379"),
		Password:    config.GetEnvString("REDIS_PASSWORD", ""),
		DB:          config.GetEnvInt("REDIS_DB", 0),
		DialTimeout: config.GetEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *Store) circuitKey(service string) string { return s.prefix + ":circuit:" + service }
func (s *Store) circuitSetKey() string            { return s.prefix + ":circuits" }
func (s *Store) dlqKey() string                   { return s.prefix + ":dlq" }
func (s *Store) errorKey(day time.Time) string    { return s.prefix + ":errors:" + entity.DayKey(day) }

/* ──────────────────────────────── circuits ──────────────────────────────── */

func (s *Store) LoadCircuit(ctx context.Context, service string) (*entity.CircuitState, error) {
	raw, err := s.client.Get(ctx, s.circuitKey(service)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return entity.NewCircuitState(service), nil
	}
	if err != nil {
		return nil, fmt.Errorf("LoadCircuit: %w", err)
	}
	return decodeCircuit(service, raw)
}

func (s *Store) ListCircuits(ctx context.Context) ([]*entity.CircuitState, error) {
	services, err := s.client.SMembers(ctx, s.circuitSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("ListCircuits: %w", err)
	}
	if len(services) == 0 {
		return nil, nil
	}
	sort.Strings(services)

	keys := make([]string, len(services))
	for i, name := range services {
		keys[i] = s.circuitKey(name)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("ListCircuits: %w", err)
	}

	out := make([]*entity.CircuitState, 0, len(services))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		st, err := decodeCircuit(services[i], []byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) UpdateCircuit(ctx context.Context, service string, fn repository.CircuitMutator) (*entity.CircuitState, error) {
	key := s.circuitKey(service)
	var result *entity.CircuitState

	err := s.optimistic(ctx, "update_circuit", func(tx *goredis.Tx) error {
		st := entity.NewCircuitState(service)
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			if st, err = decodeCircuit(service, raw); err != nil {
				return err
			}
		}

		if err := fn(st); err != nil {
			return err
		}
		st.Service = service
		encoded, err := json.Marshal(st)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			pipe.SAdd(ctx, s.circuitSetKey(), service)
			return nil
		})
		if err == nil {
			result = st
		}
		return err
	}, key)
	if err != nil {
		return nil, fmt.Errorf("UpdateCircuit: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteCircuits(ctx context.Context, services ...string) error {
	if len(services) == 0 {
		all, err := s.client.SMembers(ctx, s.circuitSetKey()).Result()
		if err != nil {
			return fmt.Errorf("DeleteCircuits: %w", err)
		}
		services = all
	}
	if len(services) == 0 {
		return nil
	}

	members := make([]interface{}, len(services))
	keys := make([]string, len(services))
	for i, name := range services {
		keys[i] = s.circuitKey(name)
		members[i] = name
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, s.circuitSetKey(), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("DeleteCircuits: %w", err)
	}
	return nil
}

/* ──────────────────────────────── dead letter queue ──────────────────────────────── */

func (s *Store) ListDLQ(ctx context.Context) ([]*entity.DeadLetterJob, error) {
	raw, err := s.client.Get(ctx, s.dlqKey()).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ListDLQ: %w", err)
	}
	var jobs []*entity.DeadLetterJob
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return nil, fmt.Errorf("ListDLQ: unmarshal: %w", err)
	}
	return jobs, nil
}

func (s *Store) UpdateDLQ(ctx context.Context, fn repository.DLQMutator) error {
	key := s.dlqKey()
	err := s.optimistic(ctx, "update_dlq", func(tx *goredis.Tx) error {
		var jobs []*entity.DeadLetterJob
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &jobs); err != nil {
				return fmt.Errorf("unmarshal dlq: %w", err)
			}
		}

		next, err := fn(jobs)
		if err != nil {
			return err
		}
		if next == nil {
			next = []*entity.DeadLetterJob{}
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("UpdateDLQ: %w", err)
	}
	return nil
}

/* ──────────────────────────────── error log ──────────────────────────────── */

func (s *Store) LoadErrorDay(ctx context.Context, day time.Time) ([]entity.ErrorLogEntry, error) {
	raw, err := s.client.Get(ctx, s.errorKey(day)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LoadErrorDay: %w", err)
	}
	var entries []entity.ErrorLogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("LoadErrorDay: unmarshal: %w", err)
	}
	return entries, nil
}

func (s *Store) UpdateErrorDay(ctx context.Context, day time.Time, fn repository.ErrorDayMutator) error {
	key := s.errorKey(day)
	err := s.optimistic(ctx, "update_error_day", func(tx *goredis.Tx) error {
		var entries []entity.ErrorLogEntry
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("unmarshal error log: %w", err)
			}
		}

		next, err := fn(entries)
		if err != nil {
			return err
		}
		if next == nil {
			next = []entity.ErrorLogEntry{}
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.errorTTL)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("UpdateErrorDay: %w", err)
	}
	return nil
}

func (s *Store) DeleteErrorDays(ctx context.Context, days ...time.Time) error {
	var keys []string
	if len(days) == 0 {
		iter := s.client.Scan(ctx, 0, s.prefix+":errors:*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("DeleteErrorDays: %w", err)
		}
	} else {
		for _, d := range days {
			keys = append(keys, s.errorKey(d))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("DeleteErrorDays: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

/* ──────────────────────────────── helpers ──────────────────────────────── */

// optimistic runs fn inside WATCH on keys, retrying when another client
// modified a watched key before EXEC.
func (s *Store) optimistic(ctx context.Context, op string, fn func(tx *goredis.Tx) error, keys ...string) error {
	start := time.Now()
	defer func() { metrics.RecordOperationDuration(op, time.Since(start)) }()

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
		slog.Debug("redis optimistic lock conflict, retrying",
			slog.String("operation", op),
			slog.Int("attempt", attempt))
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrConflict
}

func decodeCircuit(service string, raw []byte) (*entity.CircuitState, error) {
	st := entity.NewCircuitState(service)
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("unmarshal circuit state %s: %w", service, err)
	}
	if st.Phase == "" {
		st.Phase = entity.PhaseClosed
	}
	st.Service = service
	return st, nil
}
