package ports

import "context"

// NodeInfo describes the backing Lightning node.
type NodeInfo struct {
	// PubKey is the node's identity key, hex encoded.
	PubKey string

	// Alias is the node's advertised alias.
	Alias string

	// URIs are the node's reachable pubkey@host:port addresses.
	URIs []string

	// SyncedToChain reports whether the node considers itself caught up.
	SyncedToChain bool
}

// Invoice is a freshly issued BOLT-11 invoice.
type Invoice struct {
	// PaymentRequest is the bech32 encoded invoice handed to wallets.
	PaymentRequest string

	// PaymentHash is the invoice's payment hash, hex encoded. It is the
	// key under which settlement is later checked.
	PaymentHash string
}

// LightningClient is the settlement oracle: the external Lightning node
// queried and instructed by the payment lifecycle and the reconciler.
//
// Every method must observe ctx for cancellation; implementations wrap
// transport failures and timeouts in core.ErrOracleUnavailable so callers
// can tell "unknown" apart from a definitive negative answer.
type LightningClient interface {
	// AddInvoice asks the node for a new invoice over amountMsat.
	AddInvoice(ctx context.Context, memo string, amountMsat int64) (*Invoice, error)

	// InvoiceStatus reports whether the invoice with the given payment
	// hash has settled. A returned error means the answer is unknown,
	// never that the invoice is unsettled.
	InvoiceStatus(ctx context.Context, paymentHash string) (bool, error)

	// PayInvoice instructs the node to pay the given BOLT-11 invoice.
	PayInvoice(ctx context.Context, invoice string) error

	// OpenChannel asks the node to open a channel towards remoteID.
	OpenChannel(ctx context.Context, remoteID string, amountSats int64, private bool) error

	// NodeInfo returns identity and connectivity details of the node.
	NodeInfo(ctx context.Context) (*NodeInfo, error)

	// NewAddress returns a fresh on-chain funding address.
	NewAddress(ctx context.Context) (string, error)
}
