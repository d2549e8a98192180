package lnurl

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// InvoicePrefix maps a network name to the human-readable part of its
// BOLT-11 invoices.
func InvoicePrefix(network string) string {
	switch network {
	case "testnet":
		return "lntb"
	case "signet":
		return "lntbs"
	case "regtest":
		return "lnbcrt"
	default:
		return "lnbc"
	}
}

// ValidateInvoice performs the structural checks needed before an invoice
// is handed to the node: it must bech32-decode and its human-readable
// part must carry the expected network prefix. Full semantic validation
// stays with the node.
func ValidateInvoice(invoice, prefix string) error {
	hrp, _, err := bech32.DecodeNoLimit(strings.ToLower(invoice))
	if err != nil {
		return ErrNotAnInvoice
	}

	if !strings.HasPrefix(hrp, prefix) {
		return ErrNotAnInvoice
	}

	return nil
}
