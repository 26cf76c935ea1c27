package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alfanzaky/socialtx/config"
	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/metrics"
	"github.com/alfanzaky/socialtx/pkg/observability"
	"github.com/alfanzaky/socialtx/pkg/utils"
)

const (
	buildEndpoint     = "/transactions/build"
	submitEndpoint    = "/transactions/submit"
	statusEndpoint    = "/transactions/%s/status"
	referenceEndpoint = "/transactions/reference"

	maxErrorBody    = 4096
	maxErrorMessage = 512
)

// Adapter implements domain.Relay over the backend's JSON API. It owns
// transport concerns: bearer auth, client-side pacing and mapping HTTP
// failures to typed errors.
type Adapter struct {
	cfg        config.RelayConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ domain.Relay = (*Adapter)(nil)

// NewAdapter creates a new relay adapter instance
func NewAdapter(cfg config.RelayConfig, client *http.Client) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Adapter{
		cfg:        cfg,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// BuildUnsigned asks the relay for the unsigned chain of an intent
func (a *Adapter) BuildUnsigned(ctx context.Context, req *domain.BuildRequest) (*domain.UnsignedTransactionSet, error) {
	if req == nil {
		return nil, domain.NewFailure(domain.ErrorKindInvalidRequest, "build request is required", nil)
	}

	var response buildResponse
	if err := a.do(ctx, "build", http.MethodPost, buildEndpoint, req, &response); err != nil {
		return nil, err
	}

	set := &domain.UnsignedTransactionSet{
		Transactions: make([]domain.UnsignedTransaction, 0, len(response.Transactions)),
		EstimatedFee: response.EstimatedFee,
	}
	for i, tx := range response.Transactions {
		role := domain.TxRole(strings.ToLower(tx.Role))
		if role == "" {
			role = domain.TxRoleSetup
			if i == len(response.Transactions)-1 {
				role = domain.TxRolePrimary
			}
		}
		set.Transactions = append(set.Transactions, domain.UnsignedTransaction{
			Payload:     tx.Transaction,
			Description: tx.Description,
			Role:        role,
		})
	}
	return set, nil
}

// Submit relays a signed transaction, bounded by the send strategy timeout
func (a *Adapter) Submit(ctx context.Context, signed *domain.SignedTransaction, opts domain.SendOptions) (*domain.SubmitReceipt, error) {
	if signed == nil || len(signed.Payload) == 0 {
		return nil, domain.NewFailure(domain.ErrorKindInvalidRequest, "signed transaction is required", nil)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	payload := submitRequest{
		Transaction:   signed.Payload,
		Signature:     signed.Signature(),
		MaxRetries:    opts.MaxRetries,
		SkipPreflight: opts.SkipPreflight,
	}

	var response submitResponse
	if err := a.do(ctx, "submit", http.MethodPost, submitEndpoint, payload, &response); err != nil {
		return nil, err
	}
	if response.Signature == "" {
		response.Signature = signed.Signature()
	}

	return &domain.SubmitReceipt{Signature: response.Signature, Fee: response.Fee}, nil
}

// PollStatus fetches the confirmation status of a signature
func (a *Adapter) PollStatus(ctx context.Context, signature string) (*domain.TransactionStatus, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, domain.NewFailure(domain.ErrorKindInvalidRequest, "signature is required", nil)
	}

	var response statusResponse
	path := fmt.Sprintf(statusEndpoint, url.PathEscape(signature))
	if err := a.do(ctx, "status", http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}

	status := domain.SubmissionStatus(strings.ToLower(response.Status))
	switch status {
	case domain.SubmissionConfirmed, domain.SubmissionFailed:
	case "finalized":
		status = domain.SubmissionConfirmed
	default:
		status = domain.SubmissionSubmitted
	}

	return &domain.TransactionStatus{Status: status, Fee: response.Fee, Error: response.Error}, nil
}

// LatestReference fetches a fresh recent reference for pre-built transactions
func (a *Adapter) LatestReference(ctx context.Context) (string, error) {
	var response referenceResponse
	if err := a.do(ctx, "reference", http.MethodGet, referenceEndpoint, nil, &response); err != nil {
		return "", err
	}
	if response.Reference == "" {
		return "", domain.NewFailure(domain.ErrorKindRelayUnavailable, "relay returned an empty reference", nil)
	}
	return response.Reference, nil
}

// do performs one paced request and decodes the JSON response into target
func (a *Adapter) do(ctx context.Context, operation, method, path string, payload, target interface{}) (err error) {
	start := time.Now()
	status := "error"
	defer func() { metrics.RecordRelayRequest(operation, status, time.Since(start)) }()

	if err := a.limiter.Wait(ctx); err != nil {
		return domain.NewFailure(domain.ErrorKindNetwork, "relay request not sent", err)
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.BearerToken)
	}
	if traceID := observability.GetTraceIDFromContext(ctx); traceID != "" {
		req.Header.Set(observability.TraceIDHeader, traceID)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.NewFailure(domain.ErrorKindNetwork, "relay request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		status = fmt.Sprintf("%dxx", resp.StatusCode/100)
		return decodeFailure(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
			return domain.NewFailure(domain.ErrorKindRelayUnavailable, "failed to decode relay response", err)
		}
	}

	status = "ok"
	return nil
}

// decodeFailure builds a typed failure from an error response. A structured
// "code" naming a known kind wins; otherwise the kind stays unknown and the
// classifier decides from status and message.
func decodeFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorResponse
	message := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Error != "":
			message = body.Error
		case body.Message != "":
			message = body.Message
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	message = utils.TruncateString(message, maxErrorMessage)

	return &domain.FailureError{
		Kind:       knownKind(body.Code),
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

func knownKind(code string) domain.ErrorKind {
	kind := domain.ErrorKind(strings.ToLower(strings.TrimSpace(code)))
	switch kind {
	case domain.ErrorKindStaleReference,
		domain.ErrorKindSimulationFailed,
		domain.ErrorKindAccountNotFound,
		domain.ErrorKindInsufficientFunds,
		domain.ErrorKindBusinessRule,
		domain.ErrorKindInvalidRequest,
		domain.ErrorKindRateLimited,
		domain.ErrorKindRelayUnavailable:
		return kind
	default:
		return domain.ErrorKindUnknown
	}
}

func (a *Adapter) endpoint(path string) string {
	return strings.TrimRight(a.cfg.BaseURL, "/") + path
}

// --- Relay DTOs ---

type buildResponse struct {
	Transactions []struct {
		Transaction []byte `json:"transaction"`
		Description string `json:"description"`
		Role        string `json:"role"`
	} `json:"transactions"`
	EstimatedFee uint64 `json:"estimated_fee"`
}

type submitRequest struct {
	Transaction   []byte `json:"transaction"`
	Signature     string `json:"signature,omitempty"`
	MaxRetries    int    `json:"max_retries"`
	SkipPreflight bool   `json:"skip_preflight"`
}

type submitResponse struct {
	Signature string `json:"signature"`
	Fee       uint64 `json:"fee"`
}

type statusResponse struct {
	Status string  `json:"status"`
	Fee    *uint64 `json:"fee,omitempty"`
	Error  string  `json:"error,omitempty"`
}

type referenceResponse struct {
	Reference string `json:"reference"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}
