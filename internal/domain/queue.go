package domain

import (
	"context"
	"fmt"
	"time"
)

// QueueKind identifies which processor owns a queue item
type QueueKind string

// QueueStatus describes where a queue item sits in its lifecycle
type QueueStatus string

const (
	KindBlockchainTransaction QueueKind = "blockchain_transaction"
	KindMediaUpload           QueueKind = "media_upload"

	QueueStatusPending  QueueStatus = "pending"
	QueueStatusInFlight QueueStatus = "in_flight"
	QueueStatusTerminal QueueStatus = "terminal"

	MinQueuePriority     = 1
	MaxQueuePriority     = 10
	DefaultQueuePriority = 5

	BlockchainMaxAttempts = 5
	MediaMaxAttempts      = 3
)

// IsValid reports whether the kind belongs to the closed set of queue kinds
func (k QueueKind) IsValid() bool {
	return k == KindBlockchainTransaction || k == KindMediaUpload
}

// DefaultMaxAttempts returns the per-kind attempt ceiling
func (k QueueKind) DefaultMaxAttempts() int {
	switch k {
	case KindBlockchainTransaction:
		return BlockchainMaxAttempts
	case KindMediaUpload:
		return MediaMaxAttempts
	default:
		return 1
	}
}

// IsValid reports whether the status is one of the known lifecycle states
func (s QueueStatus) IsValid() bool {
	return s == QueueStatusPending || s == QueueStatusInFlight || s == QueueStatusTerminal
}

// QueueItem is the durable unit of deferred work
type QueueItem struct {
	ID          string       `json:"id" db:"id"`
	Kind        QueueKind    `json:"kind" db:"kind"`
	Priority    int          `json:"priority" db:"priority"`
	Sequence    int64        `json:"sequence" db:"sequence"`
	Payload     QueuePayload `json:"payload" db:"-"`
	Attempt     int          `json:"attempt" db:"attempt"`
	MaxAttempts int          `json:"max_attempts" db:"max_attempts"`
	Status      QueueStatus  `json:"status" db:"status"`

	// Checkpoint is a processor-defined resume marker persisted by the engine
	// between attempts (e.g. the signature of a submitted, unconfirmed transaction).
	Checkpoint string `json:"checkpoint,omitempty" db:"checkpoint"`

	TerminalError string    `json:"terminal_error,omitempty" db:"terminal_error"`
	TerminalKind  ErrorKind `json:"terminal_kind,omitempty" db:"terminal_kind"`

	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	NextAttemptAt time.Time  `json:"next_attempt_at" db:"next_attempt_at"`
}

// IsPending reports whether the item is waiting for a dispatch cycle
func (q *QueueItem) IsPending() bool {
	return q.Status == QueueStatusPending
}

// IsTerminal reports whether the item has permanently failed
func (q *QueueItem) IsTerminal() bool {
	return q.Status == QueueStatusTerminal
}

// IsEligible reports whether a pending item's backoff window has elapsed
func (q *QueueItem) IsEligible(now time.Time) bool {
	return q.IsPending() && !q.NextAttemptAt.After(now)
}

// QueuePayload is a tagged union keyed by QueueKind. Exactly one variant is set
// and it must match the owning item's kind.
type QueuePayload struct {
	Blockchain *BlockchainPayload `json:"blockchain,omitempty"`
	Media      *MediaPayload      `json:"media,omitempty"`
}

// Validate checks that only the variant belonging to kind is populated
func (p QueuePayload) Validate(kind QueueKind) error {
	switch kind {
	case KindBlockchainTransaction:
		if p.Blockchain == nil || p.Media != nil {
			return fmt.Errorf("payload for %s must carry only a blockchain variant", kind)
		}
		return p.Blockchain.Validate()
	case KindMediaUpload:
		if p.Media == nil || p.Blockchain != nil {
			return fmt.Errorf("payload for %s must carry only a media variant", kind)
		}
		return p.Media.Validate()
	default:
		return fmt.Errorf("unknown queue kind %q", kind)
	}
}

// BlockchainPayload describes a deferred blockchain action. Either Intent is set,
// in which case the transaction is built by the relay at execution time, or
// Transaction carries a pre-built unsigned transaction whose reference and fee
// payer are refreshed on every attempt.
type BlockchainPayload struct {
	Intent      *TransactionIntent `json:"intent,omitempty"`
	Transaction []byte             `json:"transaction,omitempty"`
	FeePayer    string             `json:"fee_payer,omitempty"`
	Description string             `json:"description,omitempty"`
}

// Validate checks the blockchain payload variant
func (p *BlockchainPayload) Validate() error {
	if p.Intent != nil && len(p.Transaction) > 0 {
		return fmt.Errorf("blockchain payload cannot carry both an intent and a transaction")
	}
	if p.Intent != nil {
		return p.Intent.Validate()
	}
	if len(p.Transaction) == 0 {
		return fmt.Errorf("blockchain payload requires an intent or a transaction")
	}
	if p.FeePayer == "" {
		return fmt.Errorf("fee payer is required for pre-built transactions")
	}
	return nil
}

// QueueFilter narrows queue listings; zero values match everything
type QueueFilter struct {
	Kind   QueueKind
	Status QueueStatus
}

// Matches reports whether the item satisfies the filter
func (f QueueFilter) Matches(item *QueueItem) bool {
	if f.Kind != "" && item.Kind != f.Kind {
		return false
	}
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	return true
}

// DispatchStatus is the result classification of a single dispatch cycle
type DispatchStatus string

const (
	DispatchIdle            DispatchStatus = "idle"
	DispatchSuccess         DispatchStatus = "success"
	DispatchFailedRetryable DispatchStatus = "failed_retryable"
	DispatchFailedTerminal  DispatchStatus = "failed_terminal"
)

// DispatchOutcome reports what a dispatch cycle did
type DispatchOutcome struct {
	Status        DispatchStatus
	ItemID        string
	Kind          QueueKind
	Attempt       int
	Err           error
	NextAttemptAt time.Time
	Duration      time.Duration
}

// QueueStore is the durable substrate behind the queue engine
type QueueStore interface {
	Put(ctx context.Context, item *QueueItem) error
	Get(ctx context.Context, id string) (*QueueItem, error)
	ListPending(ctx context.Context) ([]*QueueItem, error)
	List(ctx context.Context) ([]*QueueItem, error)
	Delete(ctx context.Context, id string) error
}

// QueueProcessor executes one queue item of a single kind. Processors never
// mutate stored items; they return errors and the engine records the outcome.
type QueueProcessor interface {
	Kind() QueueKind
	Execute(ctx context.Context, item *QueueItem) error
	IsRetryable(item *QueueItem, err error) bool
}

// CheckpointError lets a processor hand a resume marker back to the engine
// alongside the failure that interrupted the attempt.
type CheckpointError struct {
	Checkpoint string
	Err        error
}

func (e *CheckpointError) Error() string {
	if e.Err == nil {
		return "checkpointed: " + e.Checkpoint
	}
	return e.Err.Error()
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}
