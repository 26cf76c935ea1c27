package domain

import (
	"context"
	"encoding/json"
)

// WalletIdentity is presented to the wallet when requesting authorization
type WalletIdentity struct {
	Name string `json:"name"`
	URI  string `json:"uri,omitempty"`
	Icon string `json:"icon,omitempty"`
}

// WalletAuthorization is the result of a successful authorize call
type WalletAuthorization struct {
	Token    string   `json:"auth_token"`
	Accounts []string `json:"accounts"`
}

// WalletSignResult is one signed transaction as returned by the wallet.
// Signature is left raw because wallets disagree on its encoding.
type WalletSignResult struct {
	Payload   []byte          `json:"payload"`
	Signature json.RawMessage `json:"signature,omitempty"`
}

// Wallet is the opaque signing capability. Calls may block on user approval.
type Wallet interface {
	Authorize(ctx context.Context, identity WalletIdentity) (*WalletAuthorization, error)
	Reauthorize(ctx context.Context, token string) (*WalletAuthorization, error)
	SignTransactions(ctx context.Context, token string, payloads [][]byte) ([]WalletSignResult, error)
	Deauthorize(ctx context.Context, token string) error
}
