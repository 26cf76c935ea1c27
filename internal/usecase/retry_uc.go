package usecase

import (
	"time"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/utils"
)

// RetryPolicy defines per-kind retry behavior for queued items
type RetryPolicy struct {
	MaxAttempts  int           // Attempt ceiling before an item turns terminal
	InitialDelay time.Duration // Base delay, doubled on every failed attempt
	MaxDelay     time.Duration // Cap on the computed delay
	EnableJitter bool          // Add up to 10% random jitter to the delay
}

// DefaultRetryPolicy returns the policy for a queue kind
func DefaultRetryPolicy(kind domain.QueueKind) RetryPolicy {
	switch kind {
	case domain.KindMediaUpload:
		return RetryPolicy{
			MaxAttempts:  domain.MediaMaxAttempts,
			InitialDelay: 5 * time.Second,
			MaxDelay:     5 * time.Minute,
		}
	default:
		return RetryPolicy{
			MaxAttempts:  domain.BlockchainMaxAttempts,
			InitialDelay: 2 * time.Second,
			MaxDelay:     time.Minute,
		}
	}
}

// Delay computes the backoff after a failed attempt: InitialDelay × 2^prevAttempts,
// capped at MaxDelay, where prevAttempts is the attempt count before this failure.
func (p RetryPolicy) Delay(prevAttempts int) time.Duration {
	if prevAttempts < 0 {
		prevAttempts = 0
	}
	if prevAttempts > 30 {
		prevAttempts = 30
	}

	delay := p.InitialDelay << uint(prevAttempts)
	if delay <= 0 || (p.MaxDelay > 0 && delay > p.MaxDelay) {
		delay = p.MaxDelay
	}

	if p.EnableJitter {
		delay += utils.Jitter(delay, 0.1)
	}

	return delay
}

// SendOptionsForPriority derives the relay send strategy from queue priority:
// higher priority items get more relay-side retries and a longer timeout.
func SendOptionsForPriority(priority int) domain.SendOptions {
	priority = utils.ClampInt(priority, domain.MinQueuePriority, domain.MaxQueuePriority)
	return domain.SendOptions{
		MaxRetries:    1 + priority/2,
		Timeout:       10*time.Second + time.Duration(priority)*2*time.Second,
		SkipPreflight: false,
	}
}
