package usecase

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/alfanzaky/socialtx/internal/domain"
)

// RetryDecision is the classifier verdict for one failure
type RetryDecision string

const (
	Retryable RetryDecision = "retryable"
	Terminal  RetryDecision = "terminal"
)

// kindPattern maps lowercase message fragments to an error kind. Order matters:
// the first matching group wins.
type kindPattern struct {
	kind     domain.ErrorKind
	patterns []string
}

var messagePatterns = []kindPattern{
	{domain.ErrorKindUserRejected, []string{
		"user rejected", "user declined", "user cancelled", "user canceled", "rejected the request",
	}},
	{domain.ErrorKindNetwork, []string{
		"connection refused", "connection reset", "network request failed", "failed to fetch",
		"no such host", "i/o timeout", "network is unreachable", "broken pipe", "unexpected eof",
	}},
	{domain.ErrorKindRelayUnavailable, []string{
		"500 internal", "502 bad gateway", "503 service unavailable", "504 gateway", "service unavailable",
	}},
	{domain.ErrorKindRateLimited, []string{
		"status 429", "too many requests", "rate limit",
	}},
	{domain.ErrorKindStaleReference, []string{
		"blockhash", "recent reference not found", "reference expired",
	}},
	{domain.ErrorKindSimulationFailed, []string{
		"simulation failed", "transaction simulation", "simulate",
	}},
	{domain.ErrorKindAccountNotFound, []string{
		"account not found", "accountnotfound", "could not find account",
	}},
	{domain.ErrorKindInsufficientFunds, []string{
		"insufficient funds", "insufficient lamports", "insufficient balance",
	}},
	{domain.ErrorKindBusinessRule, []string{
		"cannot vote for yourself", "already voted", "cooldown", "already exists", "already in use",
	}},
}

// DetectKind resolves an error to its kind. Typed failures produced at the
// collaborator boundary win; message inspection is the fallback for errors
// that arrive untyped. This is the only place error text is inspected.
func DetectKind(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindUnknown
	}

	var orchErr *domain.OrchestratorError
	if errors.As(err, &orchErr) {
		if kind, ok := kindFromOrchestrator(orchErr); ok {
			return kind
		}
	}

	var failure *domain.FailureError
	if errors.As(err, &failure) {
		if failure.Kind != "" && failure.Kind != domain.ErrorKindUnknown {
			return failure.Kind
		}
		if kind, ok := kindFromStatus(failure.StatusCode); ok {
			return kind
		}
	}

	var buildErr *domain.BuildError
	if errors.As(err, &buildErr) {
		switch buildErr.Reason {
		case domain.BuildBackendUnavailable:
			return domain.ErrorKindRelayUnavailable
		case domain.BuildRateLimited:
			return domain.ErrorKindRateLimited
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ErrorKindNetwork
	}

	if kind := DetectKindFromMessage(err.Error()); kind != domain.ErrorKindUnknown {
		return kind
	}
	if failure != nil {
		return kindFromClientStatus(failure.StatusCode)
	}
	return domain.ErrorKindUnknown
}

// DetectKindFromMessage classifies free text, e.g. a relay error body
func DetectKindFromMessage(message string) domain.ErrorKind {
	msg := strings.ToLower(message)
	for _, group := range messagePatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return group.kind
			}
		}
	}
	return domain.ErrorKindUnknown
}

func kindFromStatus(code int) (domain.ErrorKind, bool) {
	switch {
	case code == http.StatusTooManyRequests:
		return domain.ErrorKindRateLimited, true
	case code >= 500:
		return domain.ErrorKindRelayUnavailable, true
	default:
		return "", false
	}
}

// kindFromClientStatus handles 4xx responses whose body matched no pattern
func kindFromClientStatus(code int) domain.ErrorKind {
	switch code {
	case http.StatusRequestTimeout:
		return domain.ErrorKindNetwork
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return domain.ErrorKindInvalidRequest
	default:
		return domain.ErrorKindUnknown
	}
}

func kindFromOrchestrator(e *domain.OrchestratorError) (domain.ErrorKind, bool) {
	switch e.Kind {
	case domain.OrchestratorCancelled:
		return domain.ErrorKindUserRejected, true
	case domain.OrchestratorInsufficientFunds:
		return domain.ErrorKindInsufficientFunds, true
	case domain.OrchestratorStaleReference:
		return domain.ErrorKindStaleReference, true
	case domain.OrchestratorNetworkError:
		return domain.ErrorKindNetwork, true
	case domain.OrchestratorConfirmationTimeout:
		return domain.ErrorKindConfirmationTimeout, true
	}
	// BuildFailed, SigningFailed and RelayRejected defer to their cause
	if e.Err != nil {
		if kind := DetectKind(e.Err); kind != domain.ErrorKindUnknown {
			return kind, true
		}
	}
	switch e.Kind {
	case domain.OrchestratorBuildFailed:
		return domain.ErrorKindInvalidRequest, true
	case domain.OrchestratorSigningFailed:
		return domain.ErrorKindSigningFailed, true
	case domain.OrchestratorRelayRejected:
		// a rejection nobody recognises stays unknown and is retried within maxAttempts
		return DetectKindFromMessage(e.Message), true
	}
	return "", false
}

// ClassifyKind maps an error kind to a retry decision
func ClassifyKind(kind domain.ErrorKind) RetryDecision {
	switch kind {
	case domain.ErrorKindAccountNotFound,
		domain.ErrorKindInsufficientFunds,
		domain.ErrorKindUserRejected,
		domain.ErrorKindBusinessRule,
		domain.ErrorKindInvalidRequest,
		domain.ErrorKindSigningFailed,
		domain.ErrorKindFileMissing,
		domain.ErrorKindFileTooLarge,
		domain.ErrorKindUnsupportedMedia:
		return Terminal
	default:
		// network, 5xx/429, stale reference, simulation, auth_stale,
		// confirmation_timeout (re-poll only) and unknown
		return Retryable
	}
}

// Classify is a pure function of the error value
func Classify(err error) RetryDecision {
	return ClassifyKind(DetectKind(err))
}

// IsRetryable is shorthand for Classify(err) == Retryable
func IsRetryable(err error) bool {
	return Classify(err) == Retryable
}
