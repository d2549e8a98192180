package core

import "time"

// WithdrawalToken is a single-use LNURL-withdraw entitlement. The amount
// is fixed by server configuration at creation; the wallet only supplies
// the invoice to pay into.
type WithdrawalToken struct {
	// K1 is the single-use random challenge identifying the token.
	K1 string

	// AmountSats is the withdrawable amount, fixed at creation.
	AmountSats int64

	// Used flips false to true exactly once on redemption. A used token
	// is rejected on every later redemption attempt, which is the replay
	// protection for the whole flow.
	Used bool

	CreatedAt time.Time
}
