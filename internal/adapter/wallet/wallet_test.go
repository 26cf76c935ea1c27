package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alfanzaky/socialtx/config"
	"github.com/alfanzaky/socialtx/internal/domain"
	"github.com/alfanzaky/socialtx/pkg/txmeta"
)

func unsignedTx(t *testing.T, payer solana.PublicKey) []byte {
	t.Helper()
	ref := solana.Hash(solana.NewWallet().PublicKey())
	ix := solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{{PublicKey: payer, IsWritable: true, IsSigner: true}},
		[]byte{0},
	)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, ref, solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("failed to build transaction: %v", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to encode transaction: %v", err)
	}
	return raw
}

func failureKind(err error) domain.ErrorKind {
	var failure *domain.FailureError
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return ""
}

func TestLocalWallet_SignsWithIssuedToken(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	w := NewLocalWallet(key, time.Minute)
	ctx := context.Background()

	auth, err := w.Authorize(ctx, domain.WalletIdentity{Name: "test"})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if len(auth.Accounts) != 1 || auth.Accounts[0] != key.PublicKey().String() {
		t.Errorf("unexpected accounts %v", auth.Accounts)
	}

	raw := unsignedTx(t, key.PublicKey())
	results, err := w.SignTransactions(ctx, auth.Token, [][]byte{raw})
	if err != nil {
		t.Fatalf("SignTransactions failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	var ints []int
	if err := json.Unmarshal(results[0].Signature, &ints); err != nil || len(ints) != 64 {
		t.Fatalf("Expected a 64 element byte array, got %s", results[0].Signature)
	}

	sigs, err := txmeta.Signatures(results[0].Payload)
	if err != nil || len(sigs) != 1 {
		t.Fatalf("Expected signed payload with one signature, got %v (%v)", sigs, err)
	}
}

func TestLocalWallet_ExpiredTokenIsStale(t *testing.T) {
	w := NewLocalWallet(solana.NewWallet().PrivateKey, time.Minute)
	current := time.Now()
	w.now = func() time.Time { return current }

	auth, _ := w.Authorize(context.Background(), domain.WalletIdentity{})
	current = current.Add(2 * time.Minute)

	if _, err := w.Reauthorize(context.Background(), auth.Token); failureKind(err) != domain.ErrorKindAuthStale {
		t.Errorf("Expected auth_stale on reauthorize, got %v", err)
	}
	if _, err := w.SignTransactions(context.Background(), auth.Token, nil); failureKind(err) != domain.ErrorKindAuthStale {
		t.Errorf("Expected auth_stale on sign, got %v", err)
	}
}

func TestLocalWallet_DeauthorizeRevokes(t *testing.T) {
	w := NewLocalWallet(solana.NewWallet().PrivateKey, time.Minute)
	ctx := context.Background()

	auth, _ := w.Authorize(ctx, domain.WalletIdentity{})
	if err := w.Deauthorize(ctx, auth.Token); err != nil {
		t.Fatalf("Deauthorize failed: %v", err)
	}
	if _, err := w.Reauthorize(ctx, auth.Token); failureKind(err) != domain.ErrorKindAuthStale {
		t.Errorf("Expected auth_stale after deauthorize, got %v", err)
	}
}

func TestLocalWallet_ForeignTransaction(t *testing.T) {
	w := NewLocalWallet(solana.NewWallet().PrivateKey, time.Minute)
	ctx := context.Background()
	auth, _ := w.Authorize(ctx, domain.WalletIdentity{})

	raw := unsignedTx(t, solana.NewWallet().PublicKey())
	if _, err := w.SignTransactions(ctx, auth.Token, [][]byte{raw}); failureKind(err) != domain.ErrorKindSigningFailed {
		t.Errorf("Expected signing_failed, got %v", err)
	}
}

func TestLoadKeypair(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	loaded, err := LoadKeypair(key.String())
	if err != nil {
		t.Fatalf("LoadKeypair failed: %v", err)
	}
	if !loaded.PublicKey().Equals(key.PublicKey()) {
		t.Errorf("Expected %s, got %s", key.PublicKey(), loaded.PublicKey())
	}

	if generated, err := LoadKeypair(""); err != nil || len(generated) == 0 {
		t.Errorf("Expected an ephemeral key, got err %v", err)
	}

	if _, err := LoadKeypair("not-a-key"); err == nil {
		t.Error("Expected error for invalid keypair")
	}
}

func TestRemoteWallet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Path {
		case authorizeEndpoint:
			json.NewEncoder(w).Encode(map[string]interface{}{"auth_token": "tok-1", "accounts": []string{"acct"}})
		case reauthorizeEndpoint:
			if string(body["auth_token"]) == `"expired"` {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"auth_token": "tok-2"})
		case signEndpoint:
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "User declined", "code": "declined"})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	w := NewRemoteWallet(config.WalletConfig{RemoteURL: server.URL}, server.Client())
	ctx := context.Background()

	auth, err := w.Authorize(ctx, domain.WalletIdentity{Name: "app"})
	if err != nil || auth.Token != "tok-1" {
		t.Fatalf("Authorize: got %+v, %v", auth, err)
	}

	rotated, err := w.Reauthorize(ctx, "tok-1")
	if err != nil || rotated.Token != "tok-2" {
		t.Fatalf("Reauthorize: got %+v, %v", rotated, err)
	}

	if _, err := w.Reauthorize(ctx, "expired"); failureKind(err) != domain.ErrorKindAuthStale {
		t.Errorf("Expected auth_stale, got %v", err)
	}

	if _, err := w.SignTransactions(ctx, "tok-2", [][]byte{{1}}); failureKind(err) != domain.ErrorKindUserRejected {
		t.Errorf("Expected user_rejected, got %v", err)
	}

	if err := w.Deauthorize(ctx, "tok-2"); err != nil {
		t.Errorf("Deauthorize failed: %v", err)
	}
}
