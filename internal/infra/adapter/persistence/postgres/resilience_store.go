package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/observability/metrics"
	"content-pipeline/internal/repository"
	"content-pipeline/internal/resilience/circuitbreaker"
)

// ResilienceStore persists circuit states, the DLQ and the error log in
// PostgreSQL. Every update runs in its own transaction and locks the target
// row with SELECT ... FOR UPDATE, so concurrent workers serialise per record.
// All statements go through a DBCircuitBreaker.
type ResilienceStore struct {
	db *circuitbreaker.DBCircuitBreaker
}

// NewResilienceStore wraps db with the default database breaker.
func NewResilienceStore(db *sql.DB) *ResilienceStore {
	return NewResilienceStoreWithBreaker(circuitbreaker.NewDBCircuitBreaker(db))
}

// NewResilienceStoreWithBreaker uses a caller-configured breaker.
func NewResilienceStoreWithBreaker(dcb *circuitbreaker.DBCircuitBreaker) *ResilienceStore {
	return &ResilienceStore{db: dcb}
}

var _ repository.ResilienceStore = (*ResilienceStore)(nil)

/* ──────────────────────────────── circuits ──────────────────────────────── */

func (s *ResilienceStore) LoadCircuit(ctx context.Context, service string) (*entity.CircuitState, error) {
	const query = `SELECT state FROM circuit_states WHERE service = $1`
	rows, err := s.db.QueryContext(ctx, query, service)
	if err != nil {
		return nil, fmt.Errorf("LoadCircuit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("LoadCircuit: %w", err)
		}
		return entity.NewCircuitState(service), nil
	}
	var raw []byte
	if err := rows.Scan(&raw); err != nil {
		return nil, fmt.Errorf("LoadCircuit: %w", err)
	}
	return decodeCircuit(service, raw)
}

func (s *ResilienceStore) ListCircuits(ctx context.Context) ([]*entity.CircuitState, error) {
	const query = `SELECT service, state FROM circuit_states ORDER BY service`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListCircuits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.CircuitState
	for rows.Next() {
		var (
			service string
			raw     []byte
		)
		if err := rows.Scan(&service, &raw); err != nil {
			return nil, fmt.Errorf("ListCircuits: %w", err)
		}
		st, err := decodeCircuit(service, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCircuits: %w", err)
	}
	return out, nil
}

func (s *ResilienceStore) UpdateCircuit(ctx context.Context, service string, fn repository.CircuitMutator) (*entity.CircuitState, error) {
	var result *entity.CircuitState
	err := s.withTx(ctx, "update_circuit", func(tx *sql.Tx) error {
		fresh, err := json.Marshal(entity.NewCircuitState(service))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO circuit_states (service, state) VALUES ($1, $2) ON CONFLICT (service) DO NOTHING`,
			service, string(fresh)); err != nil {
			return err
		}

		var raw []byte
		if err := tx.QueryRowContext(ctx,
			`SELECT state FROM circuit_states WHERE service = $1 FOR UPDATE`, service).Scan(&raw); err != nil {
			return err
		}
		st, err := decodeCircuit(service, raw)
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		st.Service = service

		next, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE circuit_states SET state = $2, updated_at = now() WHERE service = $1`,
			service, string(next)); err != nil {
			return err
		}
		result = st
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("UpdateCircuit: %w", err)
	}
	return result, nil
}

func (s *ResilienceStore) DeleteCircuits(ctx context.Context, services ...string) error {
	err := s.withTx(ctx, "delete_circuits", func(tx *sql.Tx) error {
		if len(services) == 0 {
			_, err := tx.ExecContext(ctx, `DELETE FROM circuit_states`)
			return err
		}
		for _, name := range services {
			if _, err := tx.ExecContext(ctx, `DELETE FROM circuit_states WHERE service = $1`, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("DeleteCircuits: %w", err)
	}
	return nil
}

/* ──────────────────────────────── dead letter queue ──────────────────────────────── */

func (s *ResilienceStore) ListDLQ(ctx context.Context) ([]*entity.DeadLetterJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT jobs FROM dead_letter_queue WHERE id = 1`)
	if err != nil {
		return nil, fmt.Errorf("ListDLQ: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var raw []byte
	if err := rows.Scan(&raw); err != nil {
		return nil, fmt.Errorf("ListDLQ: %w", err)
	}
	return decodeJobs(raw)
}

func (s *ResilienceStore) UpdateDLQ(ctx context.Context, fn repository.DLQMutator) error {
	err := s.withTx(ctx, "update_dlq", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dead_letter_queue (id, jobs) VALUES (1, '[]') ON CONFLICT (id) DO NOTHING`); err != nil {
			return err
		}
		var raw []byte
		if err := tx.QueryRowContext(ctx,
			`SELECT jobs FROM dead_letter_queue WHERE id = 1 FOR UPDATE`).Scan(&raw); err != nil {
			return err
		}
		jobs, err := decodeJobs(raw)
		if err != nil {
			return err
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
		_, err = tx.ExecContext(ctx,
			`UPDATE dead_letter_queue SET jobs = $1, updated_at = now() WHERE id = 1`, string(encoded))
		return err
	})
	if err != nil {
		return fmt.Errorf("UpdateDLQ: %w", err)
	}
	return nil
}

/* ──────────────────────────────── error log ──────────────────────────────── */

func (s *ResilienceStore) LoadErrorDay(ctx context.Context, day time.Time) ([]entity.ErrorLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entries FROM error_log_days WHERE day = $1`, entity.DayKey(day))
	if err != nil {
		return nil, fmt.Errorf("LoadErrorDay: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var raw []byte
	if err := rows.Scan(&raw); err != nil {
		return nil, fmt.Errorf("LoadErrorDay: %w", err)
	}
	return decodeEntries(raw)
}

func (s *ResilienceStore) UpdateErrorDay(ctx context.Context, day time.Time, fn repository.ErrorDayMutator) error {
	key := entity.DayKey(day)
	err := s.withTx(ctx, "update_error_day", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO error_log_days (day, entries) VALUES ($1, '[]') ON CONFLICT (day) DO NOTHING`, key); err != nil {
			return err
		}
		var raw []byte
		if err := tx.QueryRowContext(ctx,
			`SELECT entries FROM error_log_days WHERE day = $1 FOR UPDATE`, key).Scan(&raw); err != nil {
			return err
		}
		entries, err := decodeEntries(raw)
		if err != nil {
			return err
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
		_, err = tx.ExecContext(ctx,
			`UPDATE error_log_days SET entries = $2, updated_at = now() WHERE day = $1`, key, string(encoded))
		return err
	})
	if err != nil {
		return fmt.Errorf("UpdateErrorDay: %w", err)
	}
	return nil
}

func (s *ResilienceStore) DeleteErrorDays(ctx context.Context, days ...time.Time) error {
	err := s.withTx(ctx, "delete_error_days", func(tx *sql.Tx) error {
		if len(days) == 0 {
			_, err := tx.ExecContext(ctx, `DELETE FROM error_log_days`)
			return err
		}
		for _, d := range days {
			if _, err := tx.ExecContext(ctx, `DELETE FROM error_log_days WHERE day = $1`, entity.DayKey(d)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("DeleteErrorDays: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *ResilienceStore) Close() error {
	return s.db.DB().Close()
}

/* ──────────────────────────────── helpers ──────────────────────────────── */

func (s *ResilienceStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	start := time.Now()
	defer func() { metrics.RecordOperationDuration(op, time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func decodeCircuit(service string, raw []byte) (*entity.CircuitState, error) {
	st := entity.NewCircuitState(service)
	if len(raw) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("unmarshal circuit state %s: %w", service, err)
	}
	if st.Phase == "" {
		st.Phase = entity.PhaseClosed
	}
	st.Service = service
	return st, nil
}

func decodeJobs(raw []byte) ([]*entity.DeadLetterJob, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var jobs []*entity.DeadLetterJob
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return nil, fmt.Errorf("unmarshal dlq: %w", err)
	}
	return jobs, nil
}

func decodeEntries(raw []byte) ([]entity.ErrorLogEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var entries []entity.ErrorLogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal error log: %w", err)
	}
	return entries, nil
}
