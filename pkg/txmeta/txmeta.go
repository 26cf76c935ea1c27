// Package txmeta inspects and patches serialized transactions without
// interpreting their instructions.
package txmeta

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrEmptyPayload    = errors.New("transaction payload is empty")
	ErrFeePayerMissing = errors.New("fee payer is not a writable signer of the transaction")
	ErrSignerMissing   = errors.New("key is not a required signer of the transaction")
)

// Metadata is the small inspectable surface of an otherwise opaque transaction
type Metadata struct {
	FeePayer           string
	InstructionCount   int
	RecentReference    string
	RequiredSignatures int
	PresentSignatures  int
}

// Decode parses a wire-format transaction
func Decode(payload []byte) (*solana.Transaction, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// Inspect returns fee payer, instruction count and recent reference
func Inspect(payload []byte) (*Metadata, error) {
	tx, err := Decode(payload)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		InstructionCount:   len(tx.Message.Instructions),
		RecentReference:    tx.Message.RecentBlockhash.String(),
		RequiredSignatures: int(tx.Message.Header.NumRequiredSignatures),
	}
	if len(tx.Message.AccountKeys) > 0 {
		meta.FeePayer = tx.Message.AccountKeys[0].String()
	}
	for _, sig := range tx.Signatures {
		if sig != (solana.Signature{}) {
			meta.PresentSignatures++
		}
	}
	return meta, nil
}

// WithReference rewrites the recent reference and makes feePayer the first
// account key. Existing signatures are cleared since the message changes.
func WithReference(payload []byte, reference, feePayer string) ([]byte, error) {
	tx, err := Decode(payload)
	if err != nil {
		return nil, err
	}

	hash, err := solana.HashFromBase58(reference)
	if err != nil {
		return nil, fmt.Errorf("invalid reference: %w", err)
	}
	tx.Message.RecentBlockhash = hash

	if feePayer != "" {
		payer, err := solana.PublicKeyFromBase58(feePayer)
		if err != nil {
			return nil, fmt.Errorf("invalid fee payer: %w", err)
		}
		if err := moveToFront(&tx.Message, payer); err != nil {
			return nil, err
		}
	}

	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return out, nil
}

// moveToFront swaps payer into index 0. Both slots are writable signers so the
// header stays valid; instruction indices are remapped to follow the swap.
func moveToFront(msg *solana.Message, payer solana.PublicKey) error {
	keys := msg.AccountKeys
	if len(keys) > 0 && keys[0].Equals(payer) {
		return nil
	}

	writableSigners := int(msg.Header.NumRequiredSignatures) - int(msg.Header.NumReadonlySignedAccounts)
	idx := -1
	for i := 0; i < writableSigners && i < len(keys); i++ {
		if keys[i].Equals(payer) {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return ErrFeePayerMissing
	}

	keys[0], keys[idx] = keys[idx], keys[0]
	swap := func(i uint16) uint16 {
		switch int(i) {
		case 0:
			return uint16(idx)
		case idx:
			return 0
		default:
			return i
		}
	}
	for n := range msg.Instructions {
		ix := &msg.Instructions[n]
		ix.ProgramIDIndex = swap(ix.ProgramIDIndex)
		for a := range ix.Accounts {
			ix.Accounts[a] = swap(ix.Accounts[a])
		}
	}
	return nil
}

// Signatures returns the non-empty signatures in canonical base58
func Signatures(payload []byte) ([]string, error) {
	tx, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		if sig == (solana.Signature{}) {
			continue
		}
		out = append(out, sig.String())
	}
	return out, nil
}

// SameMessage reports whether two transactions carry identical messages,
// i.e. one is the other plus signatures.
func SameMessage(a, b []byte) (bool, error) {
	ta, err := Decode(a)
	if err != nil {
		return false, err
	}
	tb, err := Decode(b)
	if err != nil {
		return false, err
	}
	ma, err := ta.Message.MarshalBinary()
	if err != nil {
		return false, fmt.Errorf("failed to encode message: %w", err)
	}
	mb, err := tb.Message.MarshalBinary()
	if err != nil {
		return false, fmt.Errorf("failed to encode message: %w", err)
	}
	return bytes.Equal(ma, mb), nil
}

// Sign adds key's signature over the message into its signer slot. Other
// signature slots are left as they are.
func Sign(payload []byte, key solana.PrivateKey) ([]byte, solana.Signature, error) {
	tx, err := Decode(payload)
	if err != nil {
		return nil, solana.Signature{}, err
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	pub := key.PublicKey()
	idx := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, solana.Signature{}, ErrSignerMissing
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("failed to encode message: %w", err)
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("failed to sign message: %w", err)
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[idx] = sig

	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return out, sig, nil
}
