package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alfanzaky/socialtx/config"
	"github.com/alfanzaky/socialtx/internal/domain"
)

const (
	authorizeEndpoint   = "/authorize"
	reauthorizeEndpoint = "/reauthorize"
	signEndpoint        = "/sign"
	deauthorizeEndpoint = "/deauthorize"
)

// RemoteWallet talks to a wallet bridge over HTTP. Sign and authorize calls
// block until the user approves in the wallet, so only the caller's context
// bounds them unless a timeout is configured.
type RemoteWallet struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.Wallet = (*RemoteWallet)(nil)

// NewRemoteWallet creates a bridge client
func NewRemoteWallet(cfg config.WalletConfig, client *http.Client) *RemoteWallet {
	if client == nil {
		client = &http.Client{Timeout: cfg.RemoteTimeout}
	}
	return &RemoteWallet{
		baseURL:    strings.TrimRight(cfg.RemoteURL, "/"),
		httpClient: client,
	}
}

// Authorize asks the user to connect the wallet
func (w *RemoteWallet) Authorize(ctx context.Context, identity domain.WalletIdentity) (*domain.WalletAuthorization, error) {
	var auth domain.WalletAuthorization
	if err := w.doPost(ctx, authorizeEndpoint, map[string]interface{}{"identity": identity}, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

// Reauthorize confirms a cached token, possibly rotating it
func (w *RemoteWallet) Reauthorize(ctx context.Context, token string) (*domain.WalletAuthorization, error) {
	var auth domain.WalletAuthorization
	if err := w.doPost(ctx, reauthorizeEndpoint, map[string]string{"auth_token": token}, &auth); err != nil {
		return nil, err
	}
	if auth.Token == "" {
		auth.Token = token
	}
	return &auth, nil
}

// SignTransactions asks the user to approve and sign the payloads
func (w *RemoteWallet) SignTransactions(ctx context.Context, token string, payloads [][]byte) ([]domain.WalletSignResult, error) {
	payload := signRequest{AuthToken: token, Payloads: payloads}

	var response signResponse
	if err := w.doPost(ctx, signEndpoint, payload, &response); err != nil {
		return nil, err
	}
	return response.Signed, nil
}

// Deauthorize revokes the token on the wallet side
func (w *RemoteWallet) Deauthorize(ctx context.Context, token string) error {
	return w.doPost(ctx, deauthorizeEndpoint, map[string]string{"auth_token": token}, nil)
}

func (w *RemoteWallet) doPost(ctx context.Context, path string, payload, target interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewFailure(domain.ErrorKindUserRejected, "wallet request cancelled", ctx.Err())
		}
		return domain.NewFailure(domain.ErrorKindNetwork, "wallet bridge unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return walletFailure(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return domain.NewFailure(domain.ErrorKindSigningFailed, "failed to decode wallet response", err)
		}
	}
	return nil
}

// walletFailure maps bridge errors. 401 always means the token is stale.
func walletFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(raw, &body)

	message := body.Error
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	kind := domain.ErrorKindUnknown
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind = domain.ErrorKindAuthStale
	case body.Code == string(domain.ErrorKindUserRejected), body.Code == "declined":
		kind = domain.ErrorKindUserRejected
	case body.Code == string(domain.ErrorKindAuthStale):
		kind = domain.ErrorKindAuthStale
	case body.Code == string(domain.ErrorKindSigningFailed):
		kind = domain.ErrorKindSigningFailed
	}

	return &domain.FailureError{Kind: kind, StatusCode: resp.StatusCode, Message: message}
}

// --- Bridge DTOs ---

type signRequest struct {
	AuthToken string   `json:"auth_token"`
	Payloads  [][]byte `json:"payloads"`
}

type signResponse struct {
	Signed []domain.WalletSignResult `json:"signed"`
}
