package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/alfanzaky/socialtx/internal/domain"
)

type buildingRelay struct {
	stubRelay
	requests []*domain.BuildRequest
	set      *domain.UnsignedTransactionSet
	err      error
}

func (r *buildingRelay) BuildUnsigned(_ context.Context, req *domain.BuildRequest) (*domain.UnsignedTransactionSet, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	return r.set, nil
}

func TestTransactionBuilder_ComputeBudget(t *testing.T) {
	relay := &buildingRelay{set: chain("setup", "tip")}
	b := NewTransactionBuilder(relay, ComputeDefaults{PriorityFeeMicroLamports: 1000})

	intent := tipIntent()
	set, err := b.Build(context.Background(), intent)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(set.Transactions) != 2 {
		t.Errorf("Expected the chain as returned, got %d elements", len(set.Transactions))
	}

	req := relay.requests[0]
	if req.ComputeUnitLimit != 200000 || req.PriorityFeeMicroLamports != 1000 {
		t.Errorf("Expected defaults, got limit=%d fee=%d", req.ComputeUnitLimit, req.PriorityFeeMicroLamports)
	}
	if params, ok := req.Params.(*domain.CreateTipParams); !ok || params.Recipient != "creator" {
		t.Errorf("Expected tip params, got %#v", req.Params)
	}

	intent.ComputeBudget = &domain.ComputeBudget{UnitLimit: 400000}
	if _, err := b.Build(context.Background(), intent); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	req = relay.requests[1]
	if req.ComputeUnitLimit != 400000 || req.PriorityFeeMicroLamports != 1000 {
		t.Errorf("Expected override of the limit only, got limit=%d fee=%d", req.ComputeUnitLimit, req.PriorityFeeMicroLamports)
	}
}

func TestTransactionBuilder_Failures(t *testing.T) {
	tests := []struct {
		name   string
		intent *domain.TransactionIntent
		relay  *buildingRelay
		reason domain.BuildFailureReason
	}{
		{
			name:   "nil intent",
			relay:  &buildingRelay{},
			reason: domain.BuildInvalidIntent,
		},
		{
			name:   "invalid intent",
			intent: &domain.TransactionIntent{Type: domain.IntentCreateTip, Wallet: "w", CreateTip: &domain.CreateTipParams{Recipient: "r"}},
			relay:  &buildingRelay{},
			reason: domain.BuildInvalidIntent,
		},
		{
			name:   "relay down",
			intent: tipIntent(),
			relay:  &buildingRelay{err: errors.New("dial tcp: connection refused")},
			reason: domain.BuildBackendUnavailable,
		},
		{
			name:   "relay rate limited",
			intent: tipIntent(),
			relay:  &buildingRelay{err: &domain.FailureError{StatusCode: 429, Message: "slow down"}},
			reason: domain.BuildRateLimited,
		},
		{
			name:   "relay rejects",
			intent: tipIntent(),
			relay:  &buildingRelay{err: errors.New("account not found: profile")},
			reason: domain.BuildInvalidIntent,
		},
		{
			name:   "malformed chain",
			intent: tipIntent(),
			relay:  &buildingRelay{set: &domain.UnsignedTransactionSet{Transactions: []domain.UnsignedTransaction{{Payload: []byte("x"), Role: domain.TxRoleSetup}}}},
			reason: domain.BuildBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTransactionBuilder(tt.relay, ComputeDefaults{})
			_, err := b.Build(context.Background(), tt.intent)

			var buildErr *domain.BuildError
			if !errors.As(err, &buildErr) {
				t.Fatalf("Expected *BuildError, got %v", err)
			}
			if buildErr.Reason != tt.reason {
				t.Errorf("reason = %s, want %s", buildErr.Reason, tt.reason)
			}
		})
	}
}
