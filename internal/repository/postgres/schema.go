package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/alfanzaky/socialtx/pkg/logger"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		id          TEXT PRIMARY KEY,
		signature   TEXT NOT NULL DEFAULT '',
		intent_type TEXT NOT NULL DEFAULT '',
		wallet      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		fee         BIGINT,
		error_kind  TEXT,
		message     TEXT,
		elements    INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_signature ON submissions (signature)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_wallet ON submissions (wallet, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS queue_items (
		id              TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		priority        INTEGER NOT NULL,
		sequence        BIGINT NOT NULL,
		payload         JSONB NOT NULL,
		attempt         INTEGER NOT NULL DEFAULT 0,
		max_attempts    INTEGER NOT NULL,
		status          TEXT NOT NULL,
		checkpoint      TEXT NOT NULL DEFAULT '',
		terminal_error  TEXT NOT NULL DEFAULT '',
		terminal_kind   TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		last_attempt_at TIMESTAMPTZ,
		next_attempt_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_items_pending ON queue_items (status, priority DESC, sequence)`,
}

// EnsureSchema creates the tables this service owns when they are missing
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	logger.Info("Database schema ensured", logger.Int("statements", len(schemaStatements)))
	return nil
}
