package ports

import (
	"context"
	"time"

	"github.com/layer-3/lnurld/core"
)

// Store is the single source of truth for all protocol state. No
// component holds authoritative in-memory copies across requests; every
// decision-making read goes back to the store.
//
// All state transitions that enforce single-use semantics
// (AuthenticateSession, AttachInvoice, MarkPaymentPaid, SpendWithdrawal,
// CompleteChannel, CancelChannel) must be atomic check-and-set operations
// at the row level: two racing callers may never both observe the old
// state and both apply the transition.
type Store interface {
	// CreateSession persists a new auth session. The k1 must be unique
	// among stored sessions.
	CreateSession(ctx context.Context, session *core.AuthSession) error

	// SessionByK1 returns the session owning the given challenge, or
	// core.ErrChallengeNotFound.
	SessionByK1(ctx context.Context, k1 string) (*core.AuthSession, error)

	// SessionByID returns the session with the given identifier, or
	// core.ErrSessionNotFound.
	SessionByID(ctx context.Context, id string) (*core.AuthSession, error)

	// AuthenticateSession atomically binds pubKey to the session owning
	// k1 and flips it to authenticated. Re-authenticating with the same
	// key succeeds harmlessly; a different key yields
	// core.ErrInvalidSignature so two keys can never authenticate the
	// same challenge.
	AuthenticateSession(ctx context.Context, k1, pubKey string, at time.Time) error

	// DeleteExpiredSessions removes every session whose deadline passed
	// before now and returns how many were deleted.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)

	// CreatePayment persists a new pay config.
	CreatePayment(ctx context.Context, payment *core.PaymentRequest) error

	// PaymentByID returns the pay config with the given identifier, or
	// core.ErrPaymentNotFound.
	PaymentByID(ctx context.Context, id string) (*core.PaymentRequest, error)

	// AttachInvoice atomically records the invoice issued against a pay
	// config. Fails with core.ErrInvoiceIssued when one is already
	// attached.
	AttachInvoice(ctx context.Context, id, paymentHash string, amountSats int64, description, comment string) error

	// MarkPaymentPaid atomically flips a payment to paid. Marking an
	// already-paid payment is a no-op.
	MarkPaymentPaid(ctx context.Context, id string) error

	// PendingPayments returns every payment with an attached invoice
	// that has not yet been observed as paid.
	PendingPayments(ctx context.Context) ([]*core.PaymentRequest, error)

	// CreateWithdrawal persists a new withdrawal token.
	CreateWithdrawal(ctx context.Context, token *core.WithdrawalToken) error

	// WithdrawalByK1 returns the withdrawal token for k1, or
	// core.ErrWithdrawalNotFound.
	WithdrawalByK1(ctx context.Context, k1 string) (*core.WithdrawalToken, error)

	// SpendWithdrawal atomically flips a token to used. Exactly one of
	// any number of racing calls succeeds; the rest get
	// core.ErrWithdrawalUsed.
	SpendWithdrawal(ctx context.Context, k1 string) error

	// CreateChannel persists a new channel request.
	CreateChannel(ctx context.Context, request *core.ChannelRequest) error

	// ChannelByK1 returns the channel request for k1, or
	// core.ErrChannelNotFound.
	ChannelByK1(ctx context.Context, k1 string) (*core.ChannelRequest, error)

	// CompleteChannel atomically moves a channel request to the
	// completed terminal state. Fails with core.ErrChannelResolved if
	// the request is already terminal.
	CompleteChannel(ctx context.Context, k1 string) error

	// CancelChannel atomically moves a channel request to the cancelled
	// terminal state. Fails with core.ErrChannelResolved if the request
	// is already terminal.
	CancelChannel(ctx context.Context, k1 string) error
}
