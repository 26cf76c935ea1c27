package usecase

import (
	"context"
	"fmt"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
)

// ComputeDefaults are applied when an intent carries no compute budget override
type ComputeDefaults struct {
	UnitLimit                uint32
	PriorityFeeMicroLamports uint64
}

// TransactionBuilder asks the relay for the unsigned transaction chain of an intent
type TransactionBuilder struct {
	relay    domain.Relay
	defaults ComputeDefaults
}

// NewTransactionBuilder creates a new transaction builder
func NewTransactionBuilder(relay domain.Relay, defaults ComputeDefaults) *TransactionBuilder {
	if defaults.UnitLimit == 0 {
		defaults.UnitLimit = 200000
	}
	return &TransactionBuilder{relay: relay, defaults: defaults}
}

// Build returns the ordered chain for intent. Callers must not assume its length.
func (b *TransactionBuilder) Build(ctx context.Context, intent *domain.TransactionIntent) (*domain.UnsignedTransactionSet, error) {
	if intent == nil {
		return nil, &domain.BuildError{Reason: domain.BuildInvalidIntent, Err: fmt.Errorf("intent is required")}
	}
	if err := intent.Validate(); err != nil {
		return nil, &domain.BuildError{Reason: domain.BuildInvalidIntent, Err: err}
	}

	req := &domain.BuildRequest{
		Type:                     intent.Type,
		Wallet:                   intent.Wallet,
		Params:                   intent.Params(),
		ComputeUnitLimit:         b.defaults.UnitLimit,
		PriorityFeeMicroLamports: b.defaults.PriorityFeeMicroLamports,
	}
	if cb := intent.ComputeBudget; cb != nil {
		if cb.UnitLimit > 0 {
			req.ComputeUnitLimit = cb.UnitLimit
		}
		if cb.PriorityFeeMicroLamports > 0 {
			req.PriorityFeeMicroLamports = cb.PriorityFeeMicroLamports
		}
	}

	set, err := b.relay.BuildUnsigned(ctx, req)
	if err != nil {
		reason := buildFailureReason(err)
		logger.Warn("Relay failed to build transaction",
			logger.IntentType(string(intent.Type)),
			logger.String("reason", string(reason)),
			logger.ErrorField(err),
		)
		return nil, &domain.BuildError{Reason: reason, Err: err}
	}

	if err := set.Validate(); err != nil {
		return nil, &domain.BuildError{
			Reason: domain.BuildBackendUnavailable,
			Err:    fmt.Errorf("relay returned an invalid transaction set: %w", err),
		}
	}

	logger.Debug("Transaction set built",
		logger.IntentType(string(intent.Type)),
		logger.Int("elements", len(set.Transactions)),
		logger.Uint64("estimated_fee", set.EstimatedFee),
	)
	return set, nil
}

func buildFailureReason(err error) domain.BuildFailureReason {
	switch DetectKind(err) {
	case domain.ErrorKindRateLimited:
		return domain.BuildRateLimited
	case domain.ErrorKindNetwork, domain.ErrorKindRelayUnavailable, domain.ErrorKindUnknown:
		return domain.BuildBackendUnavailable
	default:
		return domain.BuildInvalidIntent
	}
}
