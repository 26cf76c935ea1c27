package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/metrics"
	"github.com/alfanzaky/socialtx/pkg/txmeta"
)

// WalletSession holds the cached authorization token. It is owned by one
// SigningAdapter and only mutated through authorize, reauthorize and deauthorize.
type WalletSession struct {
	mu       sync.RWMutex
	token    string
	accounts []string
}

// NewWalletSession creates an unauthorized session
func NewWalletSession() *WalletSession {
	return &WalletSession{}
}

// Token returns the cached token and whether the session is authorized
func (s *WalletSession) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Accounts returns the accounts granted by the last authorization
func (s *WalletSession) Accounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.accounts))
	copy(out, s.accounts)
	return out
}

func (s *WalletSession) store(auth *domain.WalletAuthorization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = auth.Token
	if len(auth.Accounts) > 0 {
		s.accounts = append([]string(nil), auth.Accounts...)
	}
}

// Invalidate clears the token so no caller can reuse it mid-rotation
func (s *WalletSession) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.accounts = nil
}

// SigningAdapter wraps the wallet capability with session handling and
// signature normalization.
type SigningAdapter struct {
	wallet   domain.Wallet
	session  *WalletSession
	identity domain.WalletIdentity

	// serializes authorize flows so two callers never rotate the token at once
	authMu sync.Mutex
}

// NewSigningAdapter creates a new signing adapter
func NewSigningAdapter(wallet domain.Wallet, session *WalletSession, identity domain.WalletIdentity) *SigningAdapter {
	if session == nil {
		session = NewWalletSession()
	}
	return &SigningAdapter{
		wallet:   wallet,
		session:  session,
		identity: identity,
	}
}

// Session exposes the injected session
func (a *SigningAdapter) Session() *WalletSession {
	return a.session
}

// Authorize performs a fresh authorization, invalidating any cached token first
func (a *SigningAdapter) Authorize(ctx context.Context) (*domain.WalletAuthorization, error) {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	return a.authorizeLocked(ctx)
}

func (a *SigningAdapter) authorizeLocked(ctx context.Context) (*domain.WalletAuthorization, error) {
	a.session.Invalidate()

	auth, err := a.wallet.Authorize(ctx, a.identity)
	if err != nil {
		logger.Warn("Wallet authorization failed",
			logger.String("kind", string(DetectKind(err))),
			logger.ErrorField(err),
		)
		return nil, err
	}
	if auth == nil || auth.Token == "" {
		return nil, domain.NewFailure(domain.ErrorKindSigningFailed, "wallet returned an empty authorization", nil)
	}

	a.session.store(auth)
	logger.Info("Wallet authorized", logger.Int("accounts", len(auth.Accounts)))
	return auth, nil
}

// refresh replaces a stale token. If another caller already rotated it, the
// new token is reused instead of authorizing twice.
func (a *SigningAdapter) refresh(ctx context.Context, stale string) (string, error) {
	a.authMu.Lock()
	defer a.authMu.Unlock()

	if current, ok := a.session.Token(); ok && current != stale {
		return current, nil
	}
	auth, err := a.authorizeLocked(ctx)
	if err != nil {
		return "", err
	}
	return auth.Token, nil
}

// Deauthorize disconnects the wallet and clears the session
func (a *SigningAdapter) Deauthorize(ctx context.Context) error {
	a.authMu.Lock()
	defer a.authMu.Unlock()

	token, ok := a.session.Token()
	a.session.Invalidate()
	if !ok {
		return nil
	}

	if err := a.wallet.Deauthorize(ctx, token); err != nil {
		return fmt.Errorf("failed to deauthorize wallet: %w", err)
	}
	logger.Info("Wallet deauthorized")
	return nil
}

// currentToken returns the cached token, authorizing first when there is none
func (a *SigningAdapter) currentToken(ctx context.Context) (string, error) {
	if token, ok := a.session.Token(); ok {
		return token, nil
	}
	auth, err := a.Authorize(ctx)
	if err != nil {
		return "", err
	}
	return auth.Token, nil
}

// reauthorize confirms the cached token is still valid, rotating it when the
// wallet returns a new one.
func (a *SigningAdapter) reauthorize(ctx context.Context, token string) (string, error) {
	auth, err := a.wallet.Reauthorize(ctx, token)
	if err != nil {
		return "", err
	}
	if auth != nil && auth.Token != "" && auth.Token != token {
		a.authMu.Lock()
		if current, _ := a.session.Token(); current == token {
			a.session.store(auth)
		}
		a.authMu.Unlock()
		return auth.Token, nil
	}
	return token, nil
}

// Sign signs one unsigned transaction. A stale token is recovered once by a
// fresh authorization and is never surfaced when that recovery succeeds.
func (a *SigningAdapter) Sign(ctx context.Context, tx domain.UnsignedTransaction) (*domain.SignedTransaction, error) {
	token, err := a.currentToken(ctx)
	if err != nil {
		metrics.RecordWalletSign("authorize_failed")
		return nil, err
	}

	signed, err := a.signWithToken(ctx, token, tx)
	if err != nil && DetectKind(err) == domain.ErrorKindAuthStale {
		logger.Info("Wallet token stale, re-authorizing", logger.String("description", tx.Description))
		token, err = a.refresh(ctx, token)
		if err != nil {
			metrics.RecordWalletSign("authorize_failed")
			return nil, err
		}
		signed, err = a.signWithToken(ctx, token, tx)
	}
	if err != nil {
		metrics.RecordWalletSign(string(DetectKind(err)))
		return nil, err
	}

	metrics.RecordWalletSign("success")
	return signed, nil
}

func (a *SigningAdapter) signWithToken(ctx context.Context, token string, tx domain.UnsignedTransaction) (*domain.SignedTransaction, error) {
	token, err := a.reauthorize(ctx, token)
	if err != nil {
		return nil, err
	}

	results, err := a.wallet.SignTransactions(ctx, token, [][]byte{tx.Payload})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 || len(results[0].Payload) == 0 {
		return nil, domain.NewFailure(domain.ErrorKindSigningFailed,
			fmt.Sprintf("wallet returned %d signed transactions for 1 request", len(results)), nil)
	}

	return normalizeSigned(tx, results[0])
}

// normalizeSigned produces the canonical signed form: base58 signatures with
// the wallet-reported signature first.
func normalizeSigned(tx domain.UnsignedTransaction, res domain.WalletSignResult) (*domain.SignedTransaction, error) {
	embedded, decodeErr := txmeta.Signatures(res.Payload)

	var primary string
	if len(res.Signature) > 0 && string(res.Signature) != "null" {
		sig, err := NormalizeSignature(res.Signature)
		if err != nil {
			return nil, domain.NewFailure(domain.ErrorKindSigningFailed, "wallet returned a malformed signature", err)
		}
		primary = sig
	} else if decodeErr == nil && len(embedded) > 0 {
		primary = embedded[0]
	} else {
		return nil, domain.NewFailure(domain.ErrorKindSigningFailed, "wallet returned no signature", decodeErr)
	}

	if same, err := txmeta.SameMessage(tx.Payload, res.Payload); err == nil && !same {
		return nil, domain.NewFailure(domain.ErrorKindSigningFailed, "wallet altered the transaction message", nil)
	}

	signatures := []string{primary}
	for _, s := range embedded {
		if s != primary {
			signatures = append(signatures, s)
		}
	}

	return &domain.SignedTransaction{
		Payload:     res.Payload,
		Signatures:  signatures,
		Role:        tx.Role,
		Description: tx.Description,
	}, nil
}

// SignSet signs every element in order and stops at the first failure, so a
// failed setup element leaves the primary element untouched.
func (a *SigningAdapter) SignSet(ctx context.Context, set *domain.UnsignedTransactionSet) ([]*domain.SignedTransaction, error) {
	signed := make([]*domain.SignedTransaction, 0, len(set.Transactions))
	for i, tx := range set.Transactions {
		s, err := a.Sign(ctx, tx)
		if err != nil {
			return signed, fmt.Errorf("failed to sign transaction %d (%s): %w", i, tx.Role, err)
		}
		signed = append(signed, s)
	}
	return signed, nil
}
