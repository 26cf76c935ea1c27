package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/metrics"
	"github.com/alfanzaky/socialtx/pkg/utils"
)

const defaultSubmissionLimit = 50

type submissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new submission ledger
func NewSubmissionRepository(db *sqlx.DB) domain.SubmissionRepository {
	return &submissionRepository{db: db}
}

// Record inserts one ledger row
func (r *submissionRepository) Record(ctx context.Context, record *domain.SubmissionRecord) error {
	if record.ID == "" {
		record.ID = utils.GenerateUUID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO submissions (id, signature, intent_type, wallet, status, fee,
			error_kind, message, elements, created_at)
		VALUES (:id, :signature, :intent_type, :wallet, :status, :fee,
			:error_kind, :message, :elements, :created_at)
	`

	start := time.Now()
	_, err := r.db.NamedExecContext(ctx, query, record)
	metrics.RecordDBQuery("insert", "submissions", time.Since(start))
	if err != nil {
		logger.Error("Failed to record submission",
			logger.Signature(record.Signature),
			logger.ErrorField(err),
		)
		return fmt.Errorf("failed to record submission: %w", err)
	}

	logger.Debug("Submission recorded",
		logger.Signature(record.Signature),
		logger.String("status", string(record.Status)),
	)
	return nil
}

// GetBySignature returns the latest row for a signature
func (r *submissionRepository) GetBySignature(ctx context.Context, signature string) (*domain.SubmissionRecord, error) {
	query := `
		SELECT id, signature, intent_type, wallet, status, fee,
			error_kind, message, elements, created_at
		FROM submissions WHERE signature = $1
		ORDER BY created_at DESC LIMIT 1
	`

	start := time.Now()
	var record domain.SubmissionRecord
	err := r.db.GetContext(ctx, &record, query, signature)
	metrics.RecordDBQuery("select", "submissions", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubmissionNotFound
		}
		logger.Error("Failed to get submission by signature",
			logger.Signature(signature),
			logger.ErrorField(err),
		)
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	return &record, nil
}

// ListByWallet returns the most recent rows for a wallet
func (r *submissionRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]*domain.SubmissionRecord, error) {
	if limit <= 0 {
		limit = defaultSubmissionLimit
	}

	query := `
		SELECT id, signature, intent_type, wallet, status, fee,
			error_kind, message, elements, created_at
		FROM submissions WHERE wallet = $1
		ORDER BY created_at DESC LIMIT $2
	`

	start := time.Now()
	var records []*domain.SubmissionRecord
	err := r.db.SelectContext(ctx, &records, query, wallet, limit)
	metrics.RecordDBQuery("select", "submissions", time.Since(start))
	if err != nil {
		logger.Error("Failed to list submissions",
			logger.String("wallet", wallet),
			logger.ErrorField(err),
		)
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	return records, nil
}
