package lnurl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const lnurlHRP = "lnurl"

var (
	// ErrNotAnInvoice is returned when a string does not look like a
	// BOLT-11 invoice for the expected network.
	ErrNotAnInvoice = errors.New("not an invoice for this network")

	// ErrNotLNURL is returned when a string is not a bech32 lnurl.
	ErrNotLNURL = errors.New("not an lnurl")
)

// Encode converts a callback URL into the bech32 "LNURL1..." form wallets
// scan. BOLT-11 style uppercasing keeps QR codes in the smaller
// alphanumeric mode.
func Encode(url string) (string, error) {
	converted, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert URL bits: %w", err)
	}

	encoded, err := bech32.Encode(lnurlHRP, converted)
	if err != nil {
		return "", fmt.Errorf("failed to bech32 encode URL: %w", err)
	}

	return strings.ToUpper(encoded), nil
}

// Decode converts a bech32 lnurl back into its callback URL.
func Decode(encoded string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(encoded))
	if err != nil || hrp != lnurlHRP {
		return "", ErrNotLNURL
	}

	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", ErrNotLNURL
	}

	return string(converted), nil
}
