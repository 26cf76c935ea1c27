package usecase

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/alfanzaky/socialtx/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind domain.ErrorKind
		want RetryDecision
	}{
		{"network text", errors.New("Network request failed"), domain.ErrorKindNetwork, Retryable},
		{"dial error", &net.OpError{Op: "dial", Err: errors.New("refused")}, domain.ErrorKindNetwork, Retryable},
		{"deadline", fmt.Errorf("submit: %w", context.DeadlineExceeded), domain.ErrorKindNetwork, Retryable},
		{"5xx status", &domain.FailureError{StatusCode: 503, Message: "down"}, domain.ErrorKindRelayUnavailable, Retryable},
		{"429 status", &domain.FailureError{StatusCode: 429}, domain.ErrorKindRateLimited, Retryable},
		{"stale blockhash", errors.New("Blockhash not found"), domain.ErrorKindStaleReference, Retryable},
		{"simulation", errors.New("Transaction simulation failed: custom program error"), domain.ErrorKindSimulationFailed, Retryable},
		{"account not found", errors.New("AccountNotFound: attempt to debit"), domain.ErrorKindAccountNotFound, Terminal},
		{"insufficient funds", errors.New("insufficient funds for fee"), domain.ErrorKindInsufficientFunds, Terminal},
		{"user rejected", errors.New("User rejected the request"), domain.ErrorKindUserRejected, Terminal},
		{"business rule", errors.New("cannot vote for yourself"), domain.ErrorKindBusinessRule, Terminal},
		{"typed failure wins over text", domain.NewFailure(domain.ErrorKindInsufficientFunds, "blockhash", nil), domain.ErrorKindInsufficientFunds, Terminal},
		{"plain 400", &domain.FailureError{StatusCode: 400, Message: "bad input"}, domain.ErrorKindInvalidRequest, Terminal},
		{"unknown", errors.New("something odd"), domain.ErrorKindUnknown, Retryable},
		{"build backend unavailable", &domain.BuildError{Reason: domain.BuildBackendUnavailable}, domain.ErrorKindRelayUnavailable, Retryable},
		{"confirmation timeout", domain.NewOrchestratorError(domain.OrchestratorConfirmationTimeout, "", nil), domain.ErrorKindConfirmationTimeout, Retryable},
		{"cancelled", domain.NewOrchestratorError(domain.OrchestratorCancelled, "", nil), domain.ErrorKindUserRejected, Terminal},
		{"relay rejected with unknown cause", domain.NewOrchestratorError(domain.OrchestratorRelayRejected, "something odd happened upstream", errors.New("something odd happened upstream")), domain.ErrorKindUnknown, Retryable},
		{"relay rejected forbidden", domain.NewOrchestratorError(domain.OrchestratorRelayRejected, "forbidden", &domain.FailureError{StatusCode: 403, Message: "forbidden"}), domain.ErrorKindUnknown, Retryable},
		{"relay rejected business rule", domain.NewOrchestratorError(domain.OrchestratorRelayRejected, "already voted on this post", nil), domain.ErrorKindBusinessRule, Terminal},
		{"transient build failure", domain.NewOrchestratorError(domain.OrchestratorBuildFailed, "", &domain.BuildError{Reason: domain.BuildRateLimited}), domain.ErrorKindRateLimited, Retryable},
		{"file missing", domain.NewFailure(domain.ErrorKindFileMissing, "gone", nil), domain.ErrorKindFileMissing, Terminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectKind(tt.err); got != tt.kind {
				t.Errorf("DetectKind() = %s, want %s", got, tt.kind)
			}
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFailureError_MessageWithoutKind(t *testing.T) {
	err := &domain.FailureError{StatusCode: 400, Message: "Blockhash not found"}
	if got := err.Error(); got != "unknown (status 400): Blockhash not found" {
		t.Errorf("unexpected message %q", got)
	}
	tagged := domain.NewFailure(domain.ErrorKindNetwork, "reset", nil)
	if got := tagged.Error(); got != "network: reset" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestClassify_NetworkBeforeStale(t *testing.T) {
	err := errors.New("connection reset while fetching blockhash")
	if got := DetectKind(err); got != domain.ErrorKindNetwork {
		t.Errorf("Expected network to take precedence, got %s", got)
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second}

	tests := []struct {
		prev int
		want time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{60, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.prev); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.prev, got, tt.want)
		}
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Minute, EnableJitter: true}
	for i := 0; i < 20; i++ {
		d := p.Delay(2)
		if d < 4*time.Second || d > 4*time.Second+400*time.Millisecond {
			t.Fatalf("jittered delay %v out of range", d)
		}
	}
}

func TestSendOptionsForPriority(t *testing.T) {
	low := SendOptionsForPriority(1)
	high := SendOptionsForPriority(10)
	if high.MaxRetries <= low.MaxRetries || high.Timeout <= low.Timeout {
		t.Errorf("Expected higher priority to get a stronger send strategy: %+v vs %+v", low, high)
	}
	if SendOptionsForPriority(99) != high {
		t.Error("Expected priority to be clamped")
	}
}
