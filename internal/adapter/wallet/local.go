package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/logger"
	"github.com/alfanzaky/socialtx/pkg/txmeta"
)

// LocalWallet signs with a keypair held by this process. Authorization
// tokens are issued per session and expire after a TTL, so callers see the
// same stale-token behavior as with an external wallet.
type LocalWallet struct {
	key solana.PrivateKey
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]time.Time
}

var _ domain.Wallet = (*LocalWallet)(nil)

// NewLocalWallet creates a wallet around key
func NewLocalWallet(key solana.PrivateKey, ttl time.Duration) *LocalWallet {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &LocalWallet{
		key:    key,
		ttl:    ttl,
		now:    time.Now,
		tokens: make(map[string]time.Time),
	}
}

// LoadKeypair reads a keypair from a keygen JSON file path or a base58
// secret. An empty source generates an ephemeral key for development.
func LoadKeypair(source string) (solana.PrivateKey, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate keypair: %w", err)
		}
		logger.Warn("No wallet keypair configured, using an ephemeral key",
			logger.String("account", key.PublicKey().String()),
		)
		return key, nil
	}

	if _, err := os.Stat(source); err == nil {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read keypair file: %w", err)
		}
		return key, nil
	}

	key, err := solana.PrivateKeyFromBase58(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse keypair: %w", err)
	}
	return key, nil
}

// Account returns the public key this wallet signs for
func (w *LocalWallet) Account() string {
	return w.key.PublicKey().String()
}

// Authorize issues a fresh session token
func (w *LocalWallet) Authorize(ctx context.Context, identity domain.WalletIdentity) (*domain.WalletAuthorization, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewFailure(domain.ErrorKindUserRejected, "authorization cancelled", err)
	}

	token := uuid.NewString()
	w.mu.Lock()
	w.tokens[token] = w.now().Add(w.ttl)
	w.mu.Unlock()

	logger.Debug("Local wallet authorized", logger.String("identity", identity.Name))
	return &domain.WalletAuthorization{Token: token, Accounts: []string{w.Account()}}, nil
}

// Reauthorize extends a live token. Expired or unknown tokens are stale.
func (w *LocalWallet) Reauthorize(ctx context.Context, token string) (*domain.WalletAuthorization, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkLocked(token); err != nil {
		return nil, err
	}
	w.tokens[token] = w.now().Add(w.ttl)
	return &domain.WalletAuthorization{Token: token, Accounts: []string{w.Account()}}, nil
}

// SignTransactions signs every payload with the local key. The signature is
// reported as a raw byte array, the shape most mobile wallets return.
func (w *LocalWallet) SignTransactions(ctx context.Context, token string, payloads [][]byte) ([]domain.WalletSignResult, error) {
	w.mu.Lock()
	err := w.checkLocked(token)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	results := make([]domain.WalletSignResult, 0, len(payloads))
	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewFailure(domain.ErrorKindUserRejected, "signing cancelled", err)
		}

		signed, sig, err := txmeta.Sign(payload, w.key)
		if err != nil {
			if errors.Is(err, txmeta.ErrSignerMissing) {
				return nil, domain.NewFailure(domain.ErrorKindSigningFailed,
					fmt.Sprintf("transaction %d does not require this wallet's signature", i), err)
			}
			return nil, domain.NewFailure(domain.ErrorKindSigningFailed, "failed to sign transaction", err)
		}

		raw, err := json.Marshal(byteArray(sig[:]))
		if err != nil {
			return nil, fmt.Errorf("failed to encode signature: %w", err)
		}
		results = append(results, domain.WalletSignResult{Payload: signed, Signature: raw})
	}
	return results, nil
}

// Deauthorize revokes a token
func (w *LocalWallet) Deauthorize(ctx context.Context, token string) error {
	w.mu.Lock()
	delete(w.tokens, token)
	w.mu.Unlock()
	return nil
}

func (w *LocalWallet) checkLocked(token string) error {
	expiry, ok := w.tokens[token]
	if !ok {
		return domain.NewFailure(domain.ErrorKindAuthStale, "auth token is not recognized", nil)
	}
	if !w.now().Before(expiry) {
		delete(w.tokens, token)
		return domain.NewFailure(domain.ErrorKindAuthStale, "auth token expired", nil)
	}
	return nil
}

// byteArray marshals as a JSON array of numbers instead of base64
type byteArray []byte

func (b byteArray) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}
