package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidMasterKey is returned when the configured master key is unusable.
var ErrInvalidMasterKey = errors.New("master key must be 32 bytes (hex 64 chars)")

// signingKeyInfo scopes the derived key to this token flow. Other signed
// flows in the system derive from the same master key with their own info
// string, so a leaked capability key never unlocks another flow.
const signingKeyInfo = "conserve/capability-token/hs256/v1"

// DecodeMasterKey parses the hex-encoded 32-byte master key.
func DecodeMasterKey(h string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, ErrInvalidMasterKey
	}
	if len(b) != 32 {
		return nil, ErrInvalidMasterKey
	}
	return b, nil
}

// DeriveSigningKey derives the 32-byte HS256 signing key from the master key
// using HKDF-SHA256.
func DeriveSigningKey(master []byte) ([]byte, error) {
	if len(master) != 32 {
		return nil, ErrInvalidMasterKey
	}
	h := hkdf.New(sha256.New, master, nil, []byte(signingKeyInfo))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}
