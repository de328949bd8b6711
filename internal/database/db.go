// Package database holds the assistant's durable state: the action log
// that makes mutations idempotent, deferred actions awaiting execution, and
// operator tuning overrides. Conversation state deliberately lives in the
// session store, not here.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the sql connection pool
type DB struct {
	*sql.DB
}

// New opens a Postgres connection pool and verifies connectivity
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn}, nil
}

// Migrate creates the assistant's tables when absent
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS action_log (
			idempotency_key TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			target TEXT NOT NULL,
			status TEXT NOT NULL,
			detail JSONB,
			executed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_action_log_user ON action_log (user_id, executed_at)`,
		`CREATE TABLE IF NOT EXISTS deferred_actions (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			target JSONB NOT NULL,
			params JSONB,
			idempotency_key TEXT NOT NULL,
			due_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deferred_actions_due ON deferred_actions (status, due_at)`,
		`CREATE TABLE IF NOT EXISTS tuning_config (
			config_key TEXT PRIMARY KEY,
			fallback_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			continuity_bonus DOUBLE PRECISION NOT NULL DEFAULT 0,
			entity_bonus DOUBLE PRECISION NOT NULL DEFAULT 0,
			complex_word_count INTEGER NOT NULL DEFAULT 0,
			minute_base INTEGER NOT NULL DEFAULT 0,
			minute_burst INTEGER NOT NULL DEFAULT 0,
			hour_capacity INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
