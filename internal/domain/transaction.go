package domain

import (
	"context"
	"fmt"
	"time"
)

// TxRole marks whether an element prepares state for, or is, the requested action
type TxRole string

const (
	TxRoleSetup   TxRole = "setup"
	TxRolePrimary TxRole = "primary"
)

// UnsignedTransaction is one opaque serialized transaction in a chain
type UnsignedTransaction struct {
	Payload     []byte `json:"payload"`
	Description string `json:"description"`
	Role        TxRole `json:"role"`
}

// UnsignedTransactionSet is the ordered chain produced for one intent. Setup
// elements always precede the single Primary element.
type UnsignedTransactionSet struct {
	Transactions []UnsignedTransaction `json:"transactions"`
	EstimatedFee uint64                `json:"estimated_fee"`
}

// Validate checks chain shape: non-empty, setups first, exactly one trailing primary
func (s *UnsignedTransactionSet) Validate() error {
	if len(s.Transactions) == 0 {
		return fmt.Errorf("transaction set is empty")
	}
	last := len(s.Transactions) - 1
	for i, tx := range s.Transactions {
		if len(tx.Payload) == 0 {
			return fmt.Errorf("transaction %d has an empty payload", i)
		}
		switch {
		case i == last && tx.Role != TxRolePrimary:
			return fmt.Errorf("last transaction must be primary, got %q", tx.Role)
		case i < last && tx.Role != TxRoleSetup:
			return fmt.Errorf("transaction %d must be setup, got %q", i, tx.Role)
		}
	}
	return nil
}

// Primary returns the final element of the chain
func (s *UnsignedTransactionSet) Primary() UnsignedTransaction {
	return s.Transactions[len(s.Transactions)-1]
}

// SignedTransaction has the same message as its unsigned counterpart plus signatures
type SignedTransaction struct {
	Payload     []byte   `json:"payload"`
	Signatures  []string `json:"signatures"`
	Role        TxRole   `json:"role"`
	Description string   `json:"description"`
}

// Signature returns the first (fee payer) signature
func (s *SignedTransaction) Signature() string {
	if len(s.Signatures) == 0 {
		return ""
	}
	return s.Signatures[0]
}

// SubmissionStatus tracks a relay-accepted transaction
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionConfirmed SubmissionStatus = "confirmed"
	SubmissionFailed    SubmissionStatus = "failed"
)

// SubmissionResult is the outcome of one orchestrated intent. Fee is nil until confirmed.
type SubmissionResult struct {
	Signature string           `json:"signature"`
	Status    SubmissionStatus `json:"status"`
	Fee       *uint64          `json:"fee,omitempty"`
	Error     string           `json:"error,omitempty"`
	Elements  []string         `json:"elements,omitempty"`
}

// SendOptions is the send strategy handed to the relay on submit
type SendOptions struct {
	MaxRetries    int           `json:"max_retries"`
	Timeout       time.Duration `json:"-"`
	SkipPreflight bool          `json:"skip_preflight"`
}

// SubmitReceipt is returned by the relay once it accepts a signed transaction
type SubmitReceipt struct {
	Signature string `json:"signature"`
	Fee       uint64 `json:"fee"`
}

// TransactionStatus is one confirmation poll response
type TransactionStatus struct {
	Status SubmissionStatus `json:"status"`
	Fee    *uint64          `json:"fee,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// BuildRequest is what the builder sends to the relay for one intent
type BuildRequest struct {
	Type                     IntentType  `json:"type"`
	Wallet                   string      `json:"wallet"`
	Params                   interface{} `json:"params"`
	ComputeUnitLimit         uint32      `json:"compute_unit_limit"`
	PriorityFeeMicroLamports uint64      `json:"priority_fee_micro_lamports"`
}

// Relay is the backend that builds, relays and reports on transactions
type Relay interface {
	BuildUnsigned(ctx context.Context, req *BuildRequest) (*UnsignedTransactionSet, error)
	Submit(ctx context.Context, signed *SignedTransaction, opts SendOptions) (*SubmitReceipt, error)
	PollStatus(ctx context.Context, signature string) (*TransactionStatus, error)
	LatestReference(ctx context.Context) (string, error)
}

// SubmissionRecord is one ledger row for a finished orchestration
type SubmissionRecord struct {
	ID         string           `json:"id" db:"id"`
	Signature  string           `json:"signature" db:"signature"`
	IntentType string           `json:"intent_type" db:"intent_type"`
	Wallet     string           `json:"wallet" db:"wallet"`
	Status     SubmissionStatus `json:"status" db:"status"`
	Fee        *int64           `json:"fee,omitempty" db:"fee"`
	ErrorKind  *string          `json:"error_kind,omitempty" db:"error_kind"`
	Message    *string          `json:"message,omitempty" db:"message"`
	Elements   int              `json:"elements" db:"elements"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}

// SubmissionRepository persists orchestration outcomes
type SubmissionRepository interface {
	Record(ctx context.Context, record *SubmissionRecord) error
	GetBySignature(ctx context.Context, signature string) (*SubmissionRecord, error)
	ListByWallet(ctx context.Context, wallet string, limit int) ([]*SubmissionRecord, error)
}
