package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/xresponse"
)

// IntentExecutor runs one intent end to end
type IntentExecutor interface {
	Execute(ctx context.Context, intent *domain.TransactionIntent) (*domain.SubmissionResult, error)
}

// TransactionHandler handles transaction-related HTTP requests
type TransactionHandler struct {
	executor    IntentExecutor
	submissions domain.SubmissionRepository
	roleGuard   *RoleGuard
}

// NewTransactionHandler creates a new transaction handler. submissions may be nil.
func NewTransactionHandler(executor IntentExecutor, submissions domain.SubmissionRepository) *TransactionHandler {
	return &TransactionHandler{
		executor:    executor,
		submissions: submissions,
		roleGuard:   NewRoleGuard(),
	}
}

// CreateTransaction builds, signs, submits and confirms one intent synchronously
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var intent domain.TransactionIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		logger.Warn("Invalid transaction request body", logger.ErrorField(err))
		xresponse.BadRequest(c, "Invalid request format")
		return
	}
	if err := intent.Validate(); err != nil {
		xresponse.ValidationError(c, gin.H{"intent": err.Error()})
		return
	}

	h.roleGuard.LogAccess(c, "execute_intent", string(intent.Type))

	result, err := h.executor.Execute(c.Request.Context(), &intent)
	if err != nil {
		writeOrchestratorError(c, &intent, err)
		return
	}

	xresponse.Success(c, "Transaction confirmed", result)
}

// writeOrchestratorError maps the orchestrator taxonomy onto HTTP status and error codes
func writeOrchestratorError(c *gin.Context, intent *domain.TransactionIntent, err error) {
	var oerr *domain.OrchestratorError
	if !errors.As(err, &oerr) {
		logger.Error("Unexpected orchestrator error",
			logger.IntentType(string(intent.Type)),
			logger.ErrorField(err),
		)
		xresponse.InternalServerError(c, "Failed to execute transaction")
		return
	}

	if oerr.IsInformational() {
		xresponse.Informational(c, xresponse.StatusCancelled, oerr.UserMessage(), nil)
		return
	}

	status, code := http.StatusInternalServerError, xresponse.ErrCodeInternalError
	switch oerr.Kind {
	case domain.OrchestratorBuildFailed:
		status, code = http.StatusUnprocessableEntity, xresponse.ErrCodeBuildFailed
		if oerr.Retryable() {
			status = http.StatusServiceUnavailable
		}
	case domain.OrchestratorSigningFailed:
		status, code = http.StatusBadGateway, xresponse.ErrCodeSigningFailed
	case domain.OrchestratorInsufficientFunds:
		status, code = http.StatusPaymentRequired, xresponse.ErrCodeInsufficientFunds
	case domain.OrchestratorStaleReference:
		status, code = http.StatusConflict, xresponse.ErrCodeStaleReference
	case domain.OrchestratorNetworkError:
		status, code = http.StatusServiceUnavailable, xresponse.ErrCodeNetworkError
	case domain.OrchestratorConfirmationTimeout:
		status, code = http.StatusGatewayTimeout, xresponse.ErrCodeConfirmationTimeout
	case domain.OrchestratorRelayRejected:
		status, code = http.StatusUnprocessableEntity, xresponse.ErrCodeRelayRejected
	}

	details := gin.H{"kind": oerr.Kind, "retryable": oerr.Retryable()}
	if oerr.Signature != "" {
		details["signature"] = oerr.Signature
	}

	logger.Warn("Transaction failed",
		logger.IntentType(string(intent.Type)),
		logger.String("kind", string(oerr.Kind)),
		logger.Signature(oerr.Signature),
		logger.ErrorField(err),
	)
	xresponse.ErrorWithDetails(c, status, code, oerr.UserMessage(), details)
}

// GetSubmission returns the ledger entry for a signature
func (h *TransactionHandler) GetSubmission(c *gin.Context) {
	signature := strings.TrimSpace(c.Param("signature"))
	if signature == "" {
		xresponse.BadRequest(c, "Signature is required")
		return
	}

	record, err := h.submissions.GetBySignature(c.Request.Context(), signature)
	if err != nil {
		if errors.Is(err, domain.ErrSubmissionNotFound) {
			xresponse.NotFound(c, "Submission not found")
			return
		}
		xresponse.InternalServerError(c, "Failed to get submission")
		return
	}

	xresponse.Success(c, "Submission retrieved", record)
}

// ListSubmissions returns recent ledger entries for a wallet
func (h *TransactionHandler) ListSubmissions(c *gin.Context) {
	wallet := strings.TrimSpace(c.Query("wallet"))
	if wallet == "" {
		xresponse.BadRequest(c, "Wallet query parameter is required")
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			xresponse.BadRequest(c, "Limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	records, err := h.submissions.ListByWallet(c.Request.Context(), wallet, limit)
	if err != nil {
		xresponse.InternalServerError(c, "Failed to list submissions")
		return
	}

	xresponse.Success(c, "Submissions retrieved", gin.H{
		"submissions": records,
		"count":       len(records),
	})
}
