package db

import (
	"context"
	"database/sql"
)

// MigrateUp creates the resilience tables. It is idempotent.
//
// Each collection is stored as JSONB so the persisted format matches the
// in-memory and Redis stores:
//   - circuit_states: one row per service
//   - dead_letter_queue: a single row (id = 1) holding the ordered job list
//   - error_log_days: one row per UTC day
func MigrateUp(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS circuit_states (
    service    TEXT PRIMARY KEY,
    state      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS dead_letter_queue (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    jobs       JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS error_log_days (
    day        DATE PRIMARY KEY,
    entries    JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_circuit_states_phase ON circuit_states ((state->>'phase'))`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
