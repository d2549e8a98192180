package core

import "errors"

// Protocol rejections. These are returned as data to the caller and
// rendered as LNURL {"status":"ERROR"} responses at the transport
// boundary; they are never system faults.
var (
	// ErrInvalidK1 is returned when a challenge value is not 64 hex
	// characters.
	ErrInvalidK1 = errors.New("invalid k1")

	// ErrInvalidPubKey is returned when a public key is not a valid
	// compressed secp256k1 point.
	ErrInvalidPubKey = errors.New("invalid public key")

	// ErrInvalidSignature is returned when signature verification fails
	// for any reason. Callers must not learn which verification step
	// failed.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidAction is returned for an unrecognized action tag.
	ErrInvalidAction = errors.New("unknown action")

	// ErrChallengeNotFound covers both an unknown and an expired auth
	// challenge. The two cases deliberately share one reason so callers
	// cannot probe challenge lifetimes.
	ErrChallengeNotFound = errors.New("invalid or expired challenge")

	// ErrSessionNotFound is returned when polling an unknown or expired
	// session identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAmountOutOfRange is returned when a requested amount falls
	// outside the configured or per-request bounds.
	ErrAmountOutOfRange = errors.New("amount out of range")

	// ErrCommentTooLong is returned when a pay comment exceeds the
	// allowance stored on the pay config.
	ErrCommentTooLong = errors.New("comment too long")

	// ErrPaymentNotFound is returned for an unknown payment identifier.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvoiceIssued is returned when an invoice was already attached
	// to a pay config.
	ErrInvoiceIssued = errors.New("invoice already issued")

	// ErrInvalidInvoice is returned when an invoice fails structural
	// validation for the configured network.
	ErrInvalidInvoice = errors.New("invalid invoice")

	// ErrWithdrawalNotFound is returned for an unknown withdrawal token.
	ErrWithdrawalNotFound = errors.New("unknown withdrawal token")

	// ErrWithdrawalUsed is returned when a withdrawal token has already
	// been redeemed.
	ErrWithdrawalUsed = errors.New("withdrawal already claimed")

	// ErrChannelNotFound is returned for an unknown channel request.
	ErrChannelNotFound = errors.New("unknown channel request")

	// ErrChannelResolved is returned when a channel request already
	// reached a terminal state.
	ErrChannelResolved = errors.New("channel request already resolved")
)

// System faults. These propagate as distinguishable failures up to the
// boundary layer and are never masked as protocol rejections.
var (
	// ErrOracleUnavailable wraps a failed or timed-out call to the
	// Lightning or chain node. For read paths the caller degrades to
	// best-known local state; for write paths it surfaces as retryable.
	ErrOracleUnavailable = errors.New("node unavailable")

	// ErrStore wraps a persistence layer failure.
	ErrStore = errors.New("store failure")
)

// IsRejection reports whether err is a protocol-level rejection rather
// than a system fault, deciding whether the transport answers with an
// LNURL error reason or a 5xx.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidK1, ErrInvalidPubKey, ErrInvalidSignature,
		ErrInvalidAction, ErrChallengeNotFound, ErrSessionNotFound,
		ErrAmountOutOfRange, ErrCommentTooLong, ErrPaymentNotFound,
		ErrInvoiceIssued, ErrInvalidInvoice, ErrWithdrawalNotFound,
		ErrWithdrawalUsed, ErrChannelNotFound, ErrChannelResolved,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
