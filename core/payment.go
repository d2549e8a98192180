package core

import "time"

// PaymentRequest is the configuration behind one LNURL-pay URL, plus the
// invoice details once a wallet asked for one. A config may never receive
// an invoice; PaymentHash stays empty in that case.
type PaymentRequest struct {
	// ID is the opaque identifier embedded in the pay URL.
	ID string

	// MinSendableMsat and MaxSendableMsat bound the amount a wallet may
	// request, in millisatoshis. 0 < min <= max.
	MinSendableMsat int64
	MaxSendableMsat int64

	// CommentAllowed is the maximum comment length accepted on the
	// invoice callback. Zero means comments are rejected.
	CommentAllowed int

	// PaymentHash identifies the invoice issued against this config,
	// empty until a wallet requests one.
	PaymentHash string

	// AmountSats, Description and Comment are populated together with
	// PaymentHash when the invoice is issued.
	AmountSats  int64
	Description string
	Comment     string

	// Paid flips false to true once settlement is observed, either by
	// the background sweep or by a direct status check. Monotonic.
	Paid bool

	CreatedAt time.Time
}

// InvoiceIssued reports whether an invoice has been attached to this
// config.
func (p *PaymentRequest) InvoiceIssued() bool {
	return p.PaymentHash != ""
}
