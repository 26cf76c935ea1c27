package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the typed failure category produced at collaborator boundaries
type ErrorKind string

const (
	ErrorKindNetwork             ErrorKind = "network"
	ErrorKindRelayUnavailable    ErrorKind = "relay_unavailable"
	ErrorKindRateLimited         ErrorKind = "rate_limited"
	ErrorKindStaleReference      ErrorKind = "stale_reference"
	ErrorKindSimulationFailed    ErrorKind = "simulation_failed"
	ErrorKindAccountNotFound     ErrorKind = "account_not_found"
	ErrorKindInsufficientFunds   ErrorKind = "insufficient_funds"
	ErrorKindUserRejected        ErrorKind = "user_rejected"
	ErrorKindAuthStale           ErrorKind = "auth_stale"
	ErrorKindSigningFailed       ErrorKind = "signing_failed"
	ErrorKindBusinessRule        ErrorKind = "business_rule"
	ErrorKindInvalidRequest      ErrorKind = "invalid_request"
	ErrorKindFileMissing         ErrorKind = "file_missing"
	ErrorKindFileTooLarge        ErrorKind = "file_too_large"
	ErrorKindUnsupportedMedia    ErrorKind = "unsupported_media"
	ErrorKindConfirmationTimeout ErrorKind = "confirmation_timeout"
	ErrorKindUnknown             ErrorKind = "unknown"
)

// Common sentinel errors
var (
	ErrQueueItemNotFound    = errors.New("queue item not found")
	ErrQueueItemNotTerminal = errors.New("queue item is not terminal")
	ErrInvalidQueueKind     = errors.New("invalid queue kind")
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrProcessorNotFound    = errors.New("no processor registered for queue kind")
	ErrNotAuthorized        = errors.New("wallet session is not authorized")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrUploadURLNotFound    = errors.New("upload url not cached")
)

// FailureError is a collaborator failure tagged with its kind. StatusCode is
// set when the failure came from an HTTP response.
type FailureError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

// NewFailure creates a FailureError with a message
func NewFailure(kind ErrorKind, message string, err error) *FailureError {
	return &FailureError{Kind: kind, Message: message, Err: err}
}

func (e *FailureError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	kind := e.Kind
	if kind == "" {
		kind = ErrorKindUnknown
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", kind, msg)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// OrchestratorErrorKind is the closed taxonomy surfaced to callers of the orchestrator
type OrchestratorErrorKind string

const (
	OrchestratorBuildFailed         OrchestratorErrorKind = "build_failed"
	OrchestratorSigningFailed       OrchestratorErrorKind = "signing_failed"
	OrchestratorCancelled           OrchestratorErrorKind = "cancelled"
	OrchestratorInsufficientFunds   OrchestratorErrorKind = "insufficient_funds"
	OrchestratorStaleReference      OrchestratorErrorKind = "stale_reference"
	OrchestratorNetworkError        OrchestratorErrorKind = "network_error"
	OrchestratorConfirmationTimeout OrchestratorErrorKind = "confirmation_timeout"
	OrchestratorRelayRejected       OrchestratorErrorKind = "relay_rejected"
)

// OrchestratorError is returned by every orchestrator entry point. Signature is
// set whenever a primary transaction was accepted by the relay.
type OrchestratorError struct {
	Kind      OrchestratorErrorKind
	Message   string
	Signature string
	Err       error
}

func (e *OrchestratorError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

// Retryable reports whether an automatic retry of the whole intent is safe.
// ConfirmationTimeout is not: the transaction may still land on-chain.
func (e *OrchestratorError) Retryable() bool {
	switch e.Kind {
	case OrchestratorStaleReference, OrchestratorNetworkError:
		return true
	case OrchestratorBuildFailed:
		var buildErr *BuildError
		return errors.As(e.Err, &buildErr) && buildErr.Transient()
	default:
		return false
	}
}

// IsInformational reports whether the outcome should be shown without error styling
func (e *OrchestratorError) IsInformational() bool {
	return e.Kind == OrchestratorCancelled
}

// UserMessage returns kind-specific copy for the application layer
func (e *OrchestratorError) UserMessage() string {
	switch e.Kind {
	case OrchestratorBuildFailed:
		return "The request could not be prepared. Please check the details and try again."
	case OrchestratorSigningFailed:
		return "The wallet could not sign the transaction."
	case OrchestratorCancelled:
		return "Transaction cancelled."
	case OrchestratorInsufficientFunds:
		return "Your wallet does not have enough funds to cover this transaction."
	case OrchestratorStaleReference:
		return "The transaction expired before it was sent. Please try again."
	case OrchestratorNetworkError:
		return "Network problem while sending the transaction. It will be retried."
	case OrchestratorConfirmationTimeout:
		return "The transaction was sent but is not confirmed yet. Check its status again shortly."
	case OrchestratorRelayRejected:
		if e.Message != "" {
			return e.Message
		}
		return "The transaction was rejected."
	default:
		return "Unexpected error."
	}
}

// NewOrchestratorError creates an OrchestratorError
func NewOrchestratorError(kind OrchestratorErrorKind, message string, err error) *OrchestratorError {
	return &OrchestratorError{Kind: kind, Message: message, Err: err}
}

// BuildFailureReason enumerates why the builder could not produce a transaction set
type BuildFailureReason string

const (
	BuildBackendUnavailable BuildFailureReason = "backend_unavailable"
	BuildInvalidIntent      BuildFailureReason = "invalid_intent"
	BuildRateLimited        BuildFailureReason = "rate_limited"
)

// BuildError is returned by the transaction builder
type BuildError struct {
	Reason BuildFailureReason
	Err    error
}

func (e *BuildError) Error() string {
	if e.Err == nil {
		return "build failed: " + string(e.Reason)
	}
	return fmt.Sprintf("build failed: %s: %v", e.Reason, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Transient reports whether the build failed for reasons outside the intent
func (e *BuildError) Transient() bool {
	return e.Reason == BuildBackendUnavailable || e.Reason == BuildRateLimited
}
