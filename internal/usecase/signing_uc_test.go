package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/txmeta"
)

func rawSignature(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, signatureLength)
}

// stubWallet issues tokens t1, t2, ... and rejects tokens listed in stale
type stubWallet struct {
	mu             sync.Mutex
	authorizations int
	reauthorized   int
	deauthorized   []string
	stale          map[string]bool
	authErr        error
	rotate         map[string]string
	signature      json.RawMessage
	signedPayload  []byte
}

func (w *stubWallet) Authorize(context.Context, domain.WalletIdentity) (*domain.WalletAuthorization, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.authErr != nil {
		return nil, w.authErr
	}
	w.authorizations++
	return &domain.WalletAuthorization{
		Token:    fmt.Sprintf("t%d", w.authorizations),
		Accounts: []string{"wallet-1"},
	}, nil
}

func (w *stubWallet) Reauthorize(_ context.Context, token string) (*domain.WalletAuthorization, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reauthorized++
	if next, ok := w.rotate[token]; ok {
		return &domain.WalletAuthorization{Token: next}, nil
	}
	return &domain.WalletAuthorization{Token: token}, nil
}

func (w *stubWallet) SignTransactions(_ context.Context, token string, payloads [][]byte) ([]domain.WalletSignResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stale[token] {
		return nil, domain.NewFailure(domain.ErrorKindAuthStale, "authorization token is no longer valid", nil)
	}
	payload := payloads[0]
	if w.signedPayload != nil {
		payload = w.signedPayload
	}
	sig := w.signature
	if sig == nil {
		sig, _ = json.Marshal(base58.Encode(rawSignature(7)))
	}
	return []domain.WalletSignResult{{Payload: payload, Signature: sig}}, nil
}

func (w *stubWallet) Deauthorize(_ context.Context, token string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deauthorized = append(w.deauthorized, token)
	return nil
}

func primaryTx(payload []byte) domain.UnsignedTransaction {
	return domain.UnsignedTransaction{Payload: payload, Description: "post", Role: domain.TxRolePrimary}
}

func TestSigningAdapter_AuthorizesLazily(t *testing.T) {
	wallet := &stubWallet{}
	signer := NewSigningAdapter(wallet, nil, domain.WalletIdentity{Name: "socialtx"})

	for i := 0; i < 2; i++ {
		signed, err := signer.Sign(context.Background(), primaryTx([]byte("opaque")))
		if err != nil {
			t.Fatalf("Sign failed: %v", err)
		}
		if signed.Signature() != base58.Encode(rawSignature(7)) {
			t.Errorf("unexpected signature %s", signed.Signature())
		}
		if signed.Role != domain.TxRolePrimary || signed.Description != "post" {
			t.Errorf("role and description must carry over, got %+v", signed)
		}
	}
	if wallet.authorizations != 1 {
		t.Errorf("Expected the token to be cached, authorized %d times", wallet.authorizations)
	}
	if accounts := signer.Session().Accounts(); len(accounts) != 1 || accounts[0] != "wallet-1" {
		t.Errorf("unexpected session accounts %v", accounts)
	}
}

func TestSigningAdapter_RecoversStaleToken(t *testing.T) {
	wallet := &stubWallet{stale: map[string]bool{"t1": true}}
	signer := NewSigningAdapter(wallet, nil, domain.WalletIdentity{Name: "socialtx"})

	if _, err := signer.Sign(context.Background(), primaryTx([]byte("opaque"))); err != nil {
		t.Fatalf("Expected stale token to be recovered silently, got %v", err)
	}
	if wallet.authorizations != 2 {
		t.Errorf("Expected exactly one re-authorization, got %d authorizations", wallet.authorizations)
	}
	if token, _ := signer.Session().Token(); token != "t2" {
		t.Errorf("Expected rotated token t2, got %q", token)
	}
}

func TestSigningAdapter_StaleAfterRecoveryIsSurfaced(t *testing.T) {
	wallet := &stubWallet{stale: map[string]bool{"t1": true, "t2": true}}
	signer := NewSigningAdapter(wallet, nil, domain.WalletIdentity{})

	_, err := signer.Sign(context.Background(), primaryTx([]byte("opaque")))
	if DetectKind(err) != domain.ErrorKindAuthStale {
		t.Errorf("Expected auth_stale after a failed recovery, got %v", err)
	}
	if wallet.authorizations != 2 {
		t.Errorf("Recovery must be attempted once, got %d authorizations", wallet.authorizations)
	}
}

func TestSigningAdapter_ReauthorizeRotation(t *testing.T) {
	wallet := &stubWallet{rotate: map[string]string{"t1": "t1-rotated"}}
	signer := NewSigningAdapter(wallet, nil, domain.WalletIdentity{})

	if _, err := signer.Sign(context.Background(), primaryTx([]byte("opaque"))); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if token, _ := signer.Session().Token(); token != "t1-rotated" {
		t.Errorf("Expected session to adopt the rotated token, got %q", token)
	}
}

func TestSigningAdapter_RejectedAuthorization(t *testing.T) {
	wallet := &stubWallet{authErr: domain.NewFailure(domain.ErrorKindUserRejected, "User rejected the request", nil)}
	signer := NewSigningAdapter(wallet, nil, domain.WalletIdentity{})

	_, err := signer.Sign(context.Background(), primaryTx([]byte("opaque")))
	if DetectKind(err) != domain.ErrorKindUserRejected {
		t.Errorf("Expected user_rejected, got %v", err)
	}
	if _, ok := signer.Session().Token(); ok {
		t.Error("Session must stay unauthorized")
	}
}

func TestSigningAdapter_Deauthorize(t *testing.T) {
	wallet := &stubWallet{}
	signer := NewSigningAdapter(wallet, nil, domain.WalletIdentity{})

	if err := signer.Deauthorize(context.Background()); err != nil || len(wallet.deauthorized) != 0 {
		t.Fatalf("Deauthorize without a session should be a no-op, err=%v calls=%v", err, wallet.deauthorized)
	}
	if _, err := signer.Authorize(context.Background()); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := signer.Deauthorize(context.Background()); err != nil {
		t.Fatalf("Deauthorize failed: %v", err)
	}
	if len(wallet.deauthorized) != 1 || wallet.deauthorized[0] != "t1" {
		t.Errorf("Expected t1 to be revoked, got %v", wallet.deauthorized)
	}
	if _, ok := signer.Session().Token(); ok {
		t.Error("Expected session to be cleared")
	}
}

func TestSigningAdapter_SignSetStopsAtFirstFailure(t *testing.T) {
	wallet := &stubWallet{signature: json.RawMessage(`"not-a-signature"`)}
	signer := NewSigningAdapter(wallet, nil, domain.WalletIdentity{})

	set := &domain.UnsignedTransactionSet{Transactions: []domain.UnsignedTransaction{
		{Payload: []byte("setup"), Description: "setup", Role: domain.TxRoleSetup},
		{Payload: []byte("post"), Description: "post", Role: domain.TxRolePrimary},
	}}
	signed, err := signer.SignSet(context.Background(), set)
	if DetectKind(err) != domain.ErrorKindSigningFailed {
		t.Fatalf("Expected signing_failed, got %v", err)
	}
	if len(signed) != 0 {
		t.Errorf("Expected nothing signed after the setup failure, got %d", len(signed))
	}

	wallet.signature = nil
	signed, err = signer.SignSet(context.Background(), set)
	if err != nil {
		t.Fatalf("SignSet failed: %v", err)
	}
	if len(signed) != 2 || signed[1].Role != domain.TxRolePrimary {
		t.Errorf("Expected both elements signed in order, got %+v", signed)
	}
}

func TestSigningAdapter_EmbeddedSignature(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	unsigned, _ := keyedTransfer(t, key)
	signedPayload, sig, err := txmeta.Sign(unsigned, key)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	wallet := &stubWallet{signature: json.RawMessage("null"), signedPayload: signedPayload}
	signer := NewSigningAdapter(wallet, nil, domain.WalletIdentity{})

	signed, err := signer.Sign(context.Background(), primaryTx(unsigned))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if signed.Signature() != sig.String() {
		t.Errorf("Expected embedded signature %s, got %s", sig, signed.Signature())
	}

	// a wallet that hands back a different message is rejected
	other, _ := unsignedTransfer(t)
	wallet.signedPayload = other
	wallet.signature = nil
	if _, err := signer.Sign(context.Background(), primaryTx(unsigned)); DetectKind(err) != domain.ErrorKindSigningFailed {
		t.Errorf("Expected signing_failed for an altered message, got %v", err)
	}
}

func keyedTransfer(t *testing.T, key solana.PrivateKey) ([]byte, solana.PublicKey) {
	t.Helper()
	payer := key.PublicKey()
	ix := solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{{PublicKey: payer, IsWritable: true, IsSigner: true}},
		[]byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
	)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash(payer), solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("failed to build transaction: %v", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to encode transaction: %v", err)
	}
	return raw, payer
}

func TestNormalizeSignature(t *testing.T) {
	sig := rawSignature(9)
	want := base58.Encode(sig)

	ints := make([]int, len(sig))
	for i, b := range sig {
		ints[i] = int(b)
	}
	array, _ := json.Marshal(ints)

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"base58 string", `"` + want + `"`, false},
		{"base64 string", `"` + base64.StdEncoding.EncodeToString(sig) + `"`, false},
		{"byte array", string(array), false},
		{"buffer object", `{"type":"Buffer","data":` + string(array) + `}`, false},
		{"wrapped", `{"signature":"` + want + `"}`, false},
		{"null", `null`, true},
		{"short", `"` + base58.Encode(sig[:10]) + `"`, true},
		{"byte out of range", `[256]`, true},
		{"unknown object", `{"sig":"x"}`, true},
		{"number", `42`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSignature(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeSignature failed: %v", err)
			}
			if got != want {
				t.Errorf("got %s, want %s", got, want)
			}
		})
	}
}
