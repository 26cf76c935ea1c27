package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/txmeta"
)

// TransactionExecutor is the orchestrator surface the blockchain processor needs
type TransactionExecutor interface {
	ExecuteWithOptions(ctx context.Context, intent *domain.TransactionIntent, opts ExecuteOptions) (*domain.SubmissionResult, error)
	ExecuteSet(ctx context.Context, set *domain.UnsignedTransactionSet, opts ExecuteOptions) (*domain.SubmissionResult, error)
	Resume(ctx context.Context, signature string, opts ExecuteOptions) (*domain.SubmissionResult, error)
}

// ReferenceSource supplies a fresh recent reference for pre-built transactions
type ReferenceSource interface {
	LatestReference(ctx context.Context) (string, error)
}

// BlockchainProcessor executes queued blockchain actions through the orchestrator
type BlockchainProcessor struct {
	executor   TransactionExecutor
	references ReferenceSource
}

// NewBlockchainProcessor creates a new blockchain processor
func NewBlockchainProcessor(executor TransactionExecutor, references ReferenceSource) *BlockchainProcessor {
	return &BlockchainProcessor{executor: executor, references: references}
}

var _ domain.QueueProcessor = (*BlockchainProcessor)(nil)

func (p *BlockchainProcessor) Kind() domain.QueueKind {
	return domain.KindBlockchainTransaction
}

// Execute runs one attempt. An item carrying a checkpoint only re-polls the
// recorded signature so a submitted transaction is never sent twice.
func (p *BlockchainProcessor) Execute(ctx context.Context, item *domain.QueueItem) error {
	payload := item.Payload.Blockchain
	if payload == nil {
		return domain.NewFailure(domain.ErrorKindInvalidRequest, "queue item has no blockchain payload", nil)
	}

	opts := ExecuteOptions{
		Priority:   item.Priority,
		IntentType: "raw_transaction",
	}
	if payload.Intent != nil {
		opts.IntentType = string(payload.Intent.Type)
		opts.Wallet = payload.Intent.Wallet
	} else {
		opts.Wallet = payload.FeePayer
	}

	if item.Checkpoint != "" {
		result, err := p.executor.Resume(ctx, item.Checkpoint, opts)
		return p.settle(item, result, err)
	}

	if payload.Intent != nil {
		result, err := p.executor.ExecuteWithOptions(ctx, payload.Intent, opts)
		return p.settle(item, result, err)
	}

	set, err := p.prepare(ctx, payload)
	if err != nil {
		return err
	}
	opts.Rebuild = func(ctx context.Context) (*domain.UnsignedTransactionSet, error) {
		return p.prepare(ctx, payload)
	}
	result, err := p.executor.ExecuteSet(ctx, set, opts)
	return p.settle(item, result, err)
}

// prepare attaches a fresh reference and the fee payer to a stored transaction
func (p *BlockchainProcessor) prepare(ctx context.Context, payload *domain.BlockchainPayload) (*domain.UnsignedTransactionSet, error) {
	ref, err := p.references.LatestReference(ctx)
	if err != nil {
		return nil, &domain.BuildError{Reason: domain.BuildBackendUnavailable, Err: err}
	}

	patched, err := txmeta.WithReference(payload.Transaction, ref, payload.FeePayer)
	if err != nil {
		return nil, domain.NewFailure(domain.ErrorKindInvalidRequest,
			fmt.Sprintf("stored transaction cannot be prepared: %v", err), err)
	}

	return &domain.UnsignedTransactionSet{
		Transactions: []domain.UnsignedTransaction{{
			Payload:     patched,
			Description: payload.Description,
			Role:        domain.TxRolePrimary,
		}},
	}, nil
}

// settle turns orchestrator results into engine-facing errors. A confirmation
// timeout checkpoints the signature; an on-chain failure clears it.
func (p *BlockchainProcessor) settle(item *domain.QueueItem, result *domain.SubmissionResult, err error) error {
	if err == nil {
		logger.Info("Queued transaction confirmed",
			logger.ItemID(item.ID),
			logger.Signature(result.Signature),
		)
		return nil
	}

	var oerr *domain.OrchestratorError
	if errors.As(err, &oerr) && oerr.Signature != "" {
		if oerr.Kind == domain.OrchestratorConfirmationTimeout {
			return &domain.CheckpointError{Checkpoint: oerr.Signature, Err: err}
		}
		if item.Checkpoint != "" {
			return &domain.CheckpointError{Checkpoint: "", Err: err}
		}
	}
	return err
}

// IsRetryable applies blockchain overrides on top of the shared classifier:
// business-rule rejections are final and simulation failures get one retry.
func (p *BlockchainProcessor) IsRetryable(item *domain.QueueItem, err error) bool {
	switch DetectKind(err) {
	case domain.ErrorKindBusinessRule:
		return false
	case domain.ErrorKindSimulationFailed:
		return item.Attempt < 1
	case domain.ErrorKindConfirmationTimeout:
		return true
	}
	return IsRetryable(err)
}
