package lnurl

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

const (
	// K1Len is the byte length of a challenge.
	K1Len = 32

	// PubKeyLen is the byte length of a compressed secp256k1 point.
	PubKeyLen = 33

	// compactSigLen is the byte length of an r||s encoded signature.
	compactSigLen = 64
)

// VerifySignature reports whether sig is a valid ECDSA signature over the
// 32-byte digest by the compressed secp256k1 public key pubKey.
//
// Wallets are inconsistent about signature encoding, so both accepted
// forms are normalized here: DER is tried first and, when that fails to
// decode, a raw 64-byte r||s pair is accepted as a fallback. Anything
// else is rejected. Malformed input of any kind yields false, never a
// panic.
func VerifySignature(digest [K1Len]byte, sig, pubKey []byte) bool {
	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false
	}

	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		parsed = parseCompactSignature(sig)
		if parsed == nil {
			return false
		}
	}

	return parsed.Verify(digest[:], key)
}

// parseCompactSignature decodes a fixed-length r||s signature, returning
// nil when the length is wrong or either scalar overflows the group
// order.
func parseCompactSignature(sig []byte) *ecdsa.Signature {
	if len(sig) != compactSigLen {
		return nil
	}

	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return nil
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return nil
	}

	return ecdsa.NewSignature(&r, &s)
}

// DecodeK1 decodes a hex challenge into the 32-byte digest wallets sign.
// The challenge itself is the signed message digest; no further hashing
// is applied.
func DecodeK1(k1 string) ([K1Len]byte, error) {
	var digest [K1Len]byte

	raw, err := hex.DecodeString(k1)
	if err != nil || len(raw) != K1Len {
		return digest, ErrMalformedK1
	}

	copy(digest[:], raw)
	return digest, nil
}

// ParsePubKey decodes a hex compressed public key and checks it is a
// valid curve point.
func ParsePubKey(key string) ([]byte, error) {
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != PubKeyLen {
		return nil, ErrMalformedPubKey
	}

	if _, err := btcec.ParsePubKey(raw); err != nil {
		return nil, ErrMalformedPubKey
	}

	return raw, nil
}
