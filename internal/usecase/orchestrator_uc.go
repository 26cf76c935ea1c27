package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/metrics"
	"github.com/alfanzaky/socialtx/pkg/utils"
)

// Orchestration stages, used for logs and metrics
const (
	StageBuilding   = "building"
	StageSigning    = "signing"
	StageSubmitting = "submitting"
	StagePolling    = "polling"
)

const (
	DefaultPollAttempts = 30
	DefaultPollInterval = 2 * time.Second
)

// TransactionSetBuilder produces the unsigned chain for an intent
type TransactionSetBuilder interface {
	Build(ctx context.Context, intent *domain.TransactionIntent) (*domain.UnsignedTransactionSet, error)
}

// TransactionSigner signs one element of a chain
type TransactionSigner interface {
	Sign(ctx context.Context, tx domain.UnsignedTransaction) (*domain.SignedTransaction, error)
}

// RebuildFunc produces a fresh unsigned set after a stale reference rejection
type RebuildFunc func(ctx context.Context) (*domain.UnsignedTransactionSet, error)

// OrchestratorConfig bounds confirmation polling
type OrchestratorConfig struct {
	PollAttempts int
	PollInterval time.Duration
}

// ExecuteOptions tune a single orchestration
type ExecuteOptions struct {
	// Priority selects the send strategy, see SendOptionsForPriority
	Priority int
	// Rebuild is called at most once when the relay rejects a stale reference
	Rebuild RebuildFunc
	// IntentType and Wallet label the ledger record
	IntentType string
	Wallet     string
}

// Orchestrator drives Build → Sign → Submit → Poll for one intent
type Orchestrator struct {
	builder     TransactionSetBuilder
	signer      TransactionSigner
	relay       domain.Relay
	submissions domain.SubmissionRepository
	cfg         OrchestratorConfig
}

// NewOrchestrator creates a new orchestrator. submissions may be nil.
func NewOrchestrator(
	builder TransactionSetBuilder,
	signer TransactionSigner,
	relay domain.Relay,
	submissions domain.SubmissionRepository,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		builder:     builder,
		signer:      signer,
		relay:       relay,
		submissions: submissions,
		cfg:         cfg,
	}
}

// Execute runs an intent with the interactive send strategy
func (o *Orchestrator) Execute(ctx context.Context, intent *domain.TransactionIntent) (*domain.SubmissionResult, error) {
	return o.ExecuteWithOptions(ctx, intent, ExecuteOptions{Priority: domain.DefaultQueuePriority})
}

// ExecuteWithOptions runs an intent. Every error returned is an *domain.OrchestratorError.
func (o *Orchestrator) ExecuteWithOptions(ctx context.Context, intent *domain.TransactionIntent, opts ExecuteOptions) (*domain.SubmissionResult, error) {
	if intent != nil {
		opts.IntentType = string(intent.Type)
		opts.Wallet = intent.Wallet
	}
	if opts.Rebuild == nil {
		opts.Rebuild = func(ctx context.Context) (*domain.UnsignedTransactionSet, error) {
			return o.builder.Build(ctx, intent)
		}
	}

	start := time.Now()
	set, err := o.builder.Build(ctx, intent)
	metrics.ObserveOrchestratorStage(StageBuilding, time.Since(start))
	if err != nil {
		oerr := mapBuildError(err)
		o.finish(ctx, opts, nil, oerr)
		return nil, oerr
	}

	return o.ExecuteSet(ctx, set, opts)
}

// ExecuteSet signs, submits and confirms a pre-built chain
func (o *Orchestrator) ExecuteSet(ctx context.Context, set *domain.UnsignedTransactionSet, opts ExecuteOptions) (*domain.SubmissionResult, error) {
	result, err := o.executeSet(ctx, set, opts)
	o.finish(ctx, opts, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Resume re-polls a previously accepted signature without resubmitting
func (o *Orchestrator) Resume(ctx context.Context, signature string, opts ExecuteOptions) (*domain.SubmissionResult, error) {
	logger.Info("Resuming confirmation polling",
		logger.Signature(signature),
		logger.IntentType(opts.IntentType),
	)
	result, err := o.poll(ctx, signature, 0, nil)
	if result != nil {
		result.Elements = []string{signature}
	}
	o.finish(ctx, opts, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) executeSet(ctx context.Context, set *domain.UnsignedTransactionSet, opts ExecuteOptions) (*domain.SubmissionResult, *domain.OrchestratorError) {
	if set == nil {
		return nil, domain.NewOrchestratorError(domain.OrchestratorBuildFailed, "transaction set is required", nil)
	}
	if err := set.Validate(); err != nil {
		return nil, domain.NewOrchestratorError(domain.OrchestratorBuildFailed, "invalid transaction set", err)
	}

	sendOpts := SendOptionsForPriority(opts.Priority)
	progress := &submitProgress{}
	rebuilt := false

	for {
		signed, oerr := o.signAll(ctx, set)
		if oerr != nil {
			return nil, oerr
		}

		oerr = o.submitAll(ctx, signed, sendOpts, progress)
		if oerr == nil {
			break
		}
		if oerr.Kind != domain.OrchestratorStaleReference || rebuilt || opts.Rebuild == nil {
			return nil, oerr
		}

		// one rebuild-and-resign per execution
		rebuilt = true
		logger.Info("Stale reference, rebuilding transaction set",
			logger.IntentType(opts.IntentType),
			logger.Int("accepted", len(progress.elements)),
		)
		start := time.Now()
		fresh, err := opts.Rebuild(ctx)
		metrics.ObserveOrchestratorStage(StageBuilding, time.Since(start))
		if err != nil {
			return nil, mapBuildError(err)
		}
		if err := fresh.Validate(); err != nil {
			return nil, domain.NewOrchestratorError(domain.OrchestratorBuildFailed, "invalid rebuilt transaction set", err)
		}
		set, err = remainingSet(fresh, len(progress.elements))
		if err != nil {
			return nil, domain.NewOrchestratorError(domain.OrchestratorBuildFailed, "invalid rebuilt transaction set", err)
		}
	}

	result, oerr := o.poll(ctx, progress.primary, progress.setupFees, &progress.primaryFee)
	if result != nil {
		result.Elements = progress.elements
	}
	return result, oerr
}

// remainingSet drops the leading setup elements the relay already accepted so
// a rebuilt chain never resubmits them
func remainingSet(fresh *domain.UnsignedTransactionSet, accepted int) (*domain.UnsignedTransactionSet, error) {
	if accepted == 0 {
		return fresh, nil
	}
	if accepted >= len(fresh.Transactions) {
		return nil, fmt.Errorf("rebuilt set has %d elements, %d already accepted", len(fresh.Transactions), accepted)
	}
	return &domain.UnsignedTransactionSet{
		Transactions: fresh.Transactions[accepted:],
		EstimatedFee: fresh.EstimatedFee,
	}, nil
}

// signAll signs every element before anything is submitted. A rejection on
// any element aborts the chain with nothing sent.
func (o *Orchestrator) signAll(ctx context.Context, set *domain.UnsignedTransactionSet) ([]*domain.SignedTransaction, *domain.OrchestratorError) {
	start := time.Now()
	defer func() { metrics.ObserveOrchestratorStage(StageSigning, time.Since(start)) }()

	signed := make([]*domain.SignedTransaction, 0, len(set.Transactions))
	for i, tx := range set.Transactions {
		if ctx.Err() != nil {
			return nil, domain.NewOrchestratorError(domain.OrchestratorCancelled, "cancelled before signing", ctx.Err())
		}

		s, err := o.signer.Sign(ctx, tx)
		if err != nil {
			if ctx.Err() != nil || DetectKind(err) == domain.ErrorKindUserRejected {
				logger.Info("Signing cancelled", logger.Int("element", i), logger.String("role", string(tx.Role)))
				return nil, domain.NewOrchestratorError(domain.OrchestratorCancelled, "signing was cancelled", err)
			}
			logger.Warn("Signing failed",
				logger.Int("element", i),
				logger.String("role", string(tx.Role)),
				logger.ErrorField(err),
			)
			return nil, domain.NewOrchestratorError(domain.OrchestratorSigningFailed, tx.Description, err)
		}
		if len(s.Signatures) == 0 {
			return nil, domain.NewOrchestratorError(domain.OrchestratorSigningFailed, "wallet returned no signatures", nil)
		}
		signed = append(signed, s)
	}
	return signed, nil
}

// submitProgress accumulates across a stale-reference rebuild
type submitProgress struct {
	elements   []string
	setupFees  uint64
	primaryFee uint64
	primary    string
}

func (o *Orchestrator) submitAll(ctx context.Context, signed []*domain.SignedTransaction, sendOpts domain.SendOptions, progress *submitProgress) *domain.OrchestratorError {
	start := time.Now()
	defer func() { metrics.ObserveOrchestratorStage(StageSubmitting, time.Since(start)) }()

	submitCtx := ctx
	if len(progress.elements) > 0 {
		submitCtx = context.WithoutCancel(ctx)
	} else if ctx.Err() != nil {
		return domain.NewOrchestratorError(domain.OrchestratorCancelled, "cancelled before submission", ctx.Err())
	}

	for i, s := range signed {
		receipt, err := o.relay.Submit(submitCtx, s, sendOpts)
		if err != nil {
			oerr := mapSubmitError(err)
			logger.Warn("Submission failed",
				logger.Int("element", i),
				logger.String("role", string(s.Role)),
				logger.String("kind", string(oerr.Kind)),
				logger.ErrorField(err),
			)
			return oerr
		}

		sig := receipt.Signature
		if sig == "" {
			sig = s.Signature()
		}
		progress.elements = append(progress.elements, sig)
		if s.Role == domain.TxRolePrimary {
			progress.primary = sig
			progress.primaryFee = receipt.Fee
		} else {
			progress.setupFees += receipt.Fee
		}

		logger.Info("Transaction submitted",
			logger.Signature(sig),
			logger.String("role", string(s.Role)),
			logger.Uint64("fee", receipt.Fee),
		)

		// once the relay accepted something, the remainder cannot be cancelled
		submitCtx = context.WithoutCancel(ctx)
	}
	return nil
}

// poll waits for a terminal status of the primary signature. Cancellation or
// exhaustion yields ConfirmationTimeout carrying the signature.
func (o *Orchestrator) poll(ctx context.Context, signature string, setupFees uint64, submitFee *uint64) (*domain.SubmissionResult, *domain.OrchestratorError) {
	start := time.Now()
	defer func() { metrics.ObserveOrchestratorStage(StagePolling, time.Since(start)) }()

	timeout := func(cause error) *domain.OrchestratorError {
		return &domain.OrchestratorError{
			Kind:      domain.OrchestratorConfirmationTimeout,
			Message:   "transaction not confirmed within polling window",
			Signature: signature,
			Err:       cause,
		}
	}

	var lastErr error
	for attempt := 0; attempt < o.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, o.cfg.PollInterval); err != nil {
				return nil, timeout(err)
			}
		}

		status, err := o.relay.PollStatus(ctx, signature)
		if err != nil {
			if ctx.Err() != nil {
				return nil, timeout(ctx.Err())
			}
			lastErr = err
			logger.Debug("Confirmation poll failed",
				logger.Signature(signature),
				logger.Attempt(attempt+1),
				logger.ErrorField(err),
			)
			continue
		}

		switch status.Status {
		case domain.SubmissionConfirmed:
			result := &domain.SubmissionResult{
				Signature: signature,
				Status:    domain.SubmissionConfirmed,
			}
			var fee uint64
			switch {
			case status.Fee != nil:
				fee = *status.Fee
			case submitFee != nil:
				fee = *submitFee
			}
			if status.Fee != nil || submitFee != nil {
				total := setupFees + fee
				result.Fee = &total
			}
			logger.Info("Transaction confirmed", logger.Signature(signature), logger.Attempt(attempt+1))
			return result, nil
		case domain.SubmissionFailed:
			oerr := mapOnChainFailure(status.Error)
			oerr.Signature = signature
			logger.Warn("Transaction failed on-chain",
				logger.Signature(signature),
				logger.String("error", status.Error),
			)
			return nil, oerr
		}
	}

	return nil, timeout(lastErr)
}

// finish records metrics and the ledger row. Ledger failures are only logged.
func (o *Orchestrator) finish(ctx context.Context, opts ExecuteOptions, result *domain.SubmissionResult, oerr *domain.OrchestratorError) {
	outcome := "confirmed"
	if oerr != nil {
		outcome = string(oerr.Kind)
	}
	metrics.RecordOrchestratorResult(outcome)

	if o.submissions == nil {
		return
	}

	record := &domain.SubmissionRecord{
		ID:         utils.GenerateUUID(),
		IntentType: opts.IntentType,
		Wallet:     opts.Wallet,
		CreatedAt:  time.Now(),
	}
	switch {
	case result != nil:
		record.Signature = result.Signature
		record.Status = result.Status
		record.Elements = len(result.Elements)
		if result.Fee != nil {
			fee := int64(*result.Fee)
			record.Fee = &fee
		}
	case oerr != nil && oerr.Signature != "":
		record.Signature = oerr.Signature
		record.Status = domain.SubmissionSubmitted
		if oerr.Kind != domain.OrchestratorConfirmationTimeout {
			record.Status = domain.SubmissionFailed
		}
	default:
		// nothing reached the chain
		return
	}
	if oerr != nil {
		kind := string(oerr.Kind)
		msg := oerr.Error()
		record.ErrorKind = &kind
		record.Message = &msg
	}

	if err := o.submissions.Record(context.WithoutCancel(ctx), record); err != nil {
		logger.Error("Failed to record submission",
			logger.Signature(record.Signature),
			logger.ErrorField(err),
		)
	}
}

// mapBuildError always yields BuildFailed; the cause stays wrapped so callers
// can tell a transient backend outage from a rejected intent
func mapBuildError(err error) *domain.OrchestratorError {
	var buildErr *domain.BuildError
	if errors.As(err, &buildErr) && buildErr.Transient() {
		return domain.NewOrchestratorError(domain.OrchestratorBuildFailed, "relay could not build the transaction", err)
	}
	return domain.NewOrchestratorError(domain.OrchestratorBuildFailed, "relay rejected the intent", err)
}

func mapSubmitError(err error) *domain.OrchestratorError {
	kind := DetectKind(err)
	switch kind {
	case domain.ErrorKindInsufficientFunds:
		return domain.NewOrchestratorError(domain.OrchestratorInsufficientFunds, "insufficient funds", err)
	case domain.ErrorKindStaleReference:
		return domain.NewOrchestratorError(domain.OrchestratorStaleReference, "transaction reference expired", err)
	case domain.ErrorKindNetwork, domain.ErrorKindRelayUnavailable, domain.ErrorKindRateLimited:
		return domain.NewOrchestratorError(domain.OrchestratorNetworkError, "relay unreachable", err)
	}
	return domain.NewOrchestratorError(domain.OrchestratorRelayRejected, failureMessage(err), err)
}

func mapOnChainFailure(message string) *domain.OrchestratorError {
	if message == "" {
		message = "transaction failed on-chain"
	}
	kind := DetectKindFromMessage(message)
	return mapSubmitError(&domain.FailureError{Kind: kind, Message: message})
}

func failureMessage(err error) string {
	var failure *domain.FailureError
	if errors.As(err, &failure) && failure.Message != "" {
		return failure.Message
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
