package usecase

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

const signatureLength = 64

// NormalizeSignature converts any encoding a wallet may hand back into
// canonical base58. Accepted shapes: base58 or base64 string, byte array,
// Buffer object, or an object wrapping one of those under "signature".
func NormalizeSignature(raw json.RawMessage) (string, error) {
	sig, err := decodeSignature(bytes.TrimSpace(raw), 0)
	if err != nil {
		return "", err
	}
	if len(sig) != signatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", signatureLength, len(sig))
	}
	return base58.Encode(sig), nil
}

func decodeSignature(raw []byte, depth int) ([]byte, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("signature is empty")
	}
	if depth > 2 {
		return nil, fmt.Errorf("signature nested too deeply")
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid signature string: %w", err)
		}
		return decodeSignatureString(s)
	case '[':
		// json.Unmarshal into []byte expects base64, so go through []int
		var ints []int
		if err := json.Unmarshal(raw, &ints); err != nil {
			return nil, fmt.Errorf("invalid signature array: %w", err)
		}
		out := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("signature byte %d out of range: %d", i, v)
			}
			out[i] = byte(v)
		}
		return out, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("invalid signature object: %w", err)
		}
		if inner, ok := obj["signature"]; ok {
			return decodeSignature(bytes.TrimSpace(inner), depth+1)
		}
		if data, ok := obj["data"]; ok {
			return decodeSignature(bytes.TrimSpace(data), depth+1)
		}
		return nil, fmt.Errorf("signature object has no signature or data field")
	default:
		return nil, fmt.Errorf("unsupported signature encoding")
	}
}

func decodeSignatureString(s string) ([]byte, error) {
	if decoded, err := base58.Decode(s); err == nil && len(decoded) == signatureLength {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil && len(decoded) == signatureLength {
		return decoded, nil
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(s); err == nil && len(decoded) == signatureLength {
		return decoded, nil
	}
	return nil, fmt.Errorf("signature string is neither base58 nor base64 of %d bytes", signatureLength)
}
