package lnurl

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrMalformedK1 is returned for a challenge that is not 64 hex
	// characters.
	ErrMalformedK1 = errors.New("k1 must be 32 hex-encoded bytes")

	// ErrMalformedPubKey is returned for a key that is not a hex
	// compressed curve point.
	ErrMalformedPubKey = errors.New("public key must be a 33-byte compressed point")
)

// RandomK1 returns a fresh 32-byte challenge, hex encoded. The value
// space is large enough that collisions among outstanding challenges are
// negligible; the store still enforces uniqueness as defense in depth.
func RandomK1() (string, error) {
	return randomHex(K1Len)
}

// randomHex returns n cryptographically random bytes, hex encoded.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}
