package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/metrics"
)

const queueColumns = `id, kind, priority, sequence, payload, attempt, max_attempts, status,
	checkpoint, terminal_error, terminal_kind, created_at, last_attempt_at, next_attempt_at`

// queueRow is the table shape of a queue item; the payload union is stored as JSON
type queueRow struct {
	ID            string       `db:"id"`
	Kind          string       `db:"kind"`
	Priority      int          `db:"priority"`
	Sequence      int64        `db:"sequence"`
	Payload       []byte       `db:"payload"`
	Attempt       int          `db:"attempt"`
	MaxAttempts   int          `db:"max_attempts"`
	Status        string       `db:"status"`
	Checkpoint    string       `db:"checkpoint"`
	TerminalError string       `db:"terminal_error"`
	TerminalKind  string       `db:"terminal_kind"`
	CreatedAt     time.Time    `db:"created_at"`
	LastAttemptAt sql.NullTime `db:"last_attempt_at"`
	NextAttemptAt time.Time    `db:"next_attempt_at"`
}

func toRow(item *domain.QueueItem) (*queueRow, error) {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue payload: %w", err)
	}
	row := &queueRow{
		ID:            item.ID,
		Kind:          string(item.Kind),
		Priority:      item.Priority,
		Sequence:      item.Sequence,
		Payload:       payload,
		Attempt:       item.Attempt,
		MaxAttempts:   item.MaxAttempts,
		Status:        string(item.Status),
		Checkpoint:    item.Checkpoint,
		TerminalError: item.TerminalError,
		TerminalKind:  string(item.TerminalKind),
		CreatedAt:     item.CreatedAt,
		NextAttemptAt: item.NextAttemptAt,
	}
	if item.LastAttemptAt != nil {
		row.LastAttemptAt = sql.NullTime{Time: *item.LastAttemptAt, Valid: true}
	}
	return row, nil
}

func (row *queueRow) toItem() (*domain.QueueItem, error) {
	item := &domain.QueueItem{
		ID:            row.ID,
		Kind:          domain.QueueKind(row.Kind),
		Priority:      row.Priority,
		Sequence:      row.Sequence,
		Attempt:       row.Attempt,
		MaxAttempts:   row.MaxAttempts,
		Status:        domain.QueueStatus(row.Status),
		Checkpoint:    row.Checkpoint,
		TerminalError: row.TerminalError,
		TerminalKind:  domain.ErrorKind(row.TerminalKind),
		CreatedAt:     row.CreatedAt,
		NextAttemptAt: row.NextAttemptAt,
	}
	if row.LastAttemptAt.Valid {
		t := row.LastAttemptAt.Time
		item.LastAttemptAt = &t
	}
	if err := json.Unmarshal(row.Payload, &item.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload of %s: %w", row.ID, err)
	}
	return item, nil
}

type queueRepository struct {
	db *sqlx.DB
}

var _ domain.QueueStore = (*queueRepository)(nil)

// NewQueueRepository creates a Postgres backed queue store
func NewQueueRepository(db *sqlx.DB) domain.QueueStore {
	return &queueRepository{db: db}
}

// Put upserts an item
func (r *queueRepository) Put(ctx context.Context, item *domain.QueueItem) error {
	row, err := toRow(item)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO queue_items (` + queueColumns + `)
		VALUES (:id, :kind, :priority, :sequence, :payload, :attempt, :max_attempts, :status,
			:checkpoint, :terminal_error, :terminal_kind, :created_at, :last_attempt_at, :next_attempt_at)
		ON CONFLICT (id) DO UPDATE SET
			priority = EXCLUDED.priority,
			payload = EXCLUDED.payload,
			attempt = EXCLUDED.attempt,
			max_attempts = EXCLUDED.max_attempts,
			status = EXCLUDED.status,
			checkpoint = EXCLUDED.checkpoint,
			terminal_error = EXCLUDED.terminal_error,
			terminal_kind = EXCLUDED.terminal_kind,
			last_attempt_at = EXCLUDED.last_attempt_at,
			next_attempt_at = EXCLUDED.next_attempt_at
	`

	start := time.Now()
	_, err = r.db.NamedExecContext(ctx, query, row)
	metrics.RecordDBQuery("upsert", "queue_items", time.Since(start))
	if err != nil {
		logger.Error("Failed to store queue item", logger.ItemID(item.ID), logger.ErrorField(err))
		return fmt.Errorf("failed to store queue item: %w", err)
	}
	return nil
}

// Get returns one item or domain.ErrQueueItemNotFound
func (r *queueRepository) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	start := time.Now()
	var row queueRow
	err := r.db.GetContext(ctx, &row, `SELECT `+queueColumns+` FROM queue_items WHERE id = $1`, id)
	metrics.RecordDBQuery("select", "queue_items", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrQueueItemNotFound
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return row.toItem()
}

// ListPending returns pending items in dispatch order
func (r *queueRepository) ListPending(ctx context.Context) ([]*domain.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items WHERE status = $1 ORDER BY priority DESC, sequence`
	return r.selectItems(ctx, query, string(domain.QueueStatusPending))
}

// List returns every stored item
func (r *queueRepository) List(ctx context.Context) ([]*domain.QueueItem, error) {
	return r.selectItems(ctx, `SELECT `+queueColumns+` FROM queue_items ORDER BY priority DESC, sequence`)
}

func (r *queueRepository) selectItems(ctx context.Context, query string, args ...interface{}) ([]*domain.QueueItem, error) {
	start := time.Now()
	var rows []queueRow
	err := r.db.SelectContext(ctx, &rows, query, args...)
	metrics.RecordDBQuery("select", "queue_items", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}

	items := make([]*domain.QueueItem, 0, len(rows))
	for i := range rows {
		item, err := rows[i].toItem()
		if err != nil {
			logger.Error("Skipping unreadable queue item", logger.ItemID(rows[i].ID), logger.ErrorField(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Delete removes an item
func (r *queueRepository) Delete(ctx context.Context, id string) error {
	start := time.Now()
	result, err := r.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = $1`, id)
	metrics.RecordDBQuery("delete", "queue_items", time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return domain.ErrQueueItemNotFound
	}
	return nil
}
