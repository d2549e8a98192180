package ports

import "context"

// EventPublisher notifies other services about protocol milestones.
// Publishing is best-effort: the store transition is the source of truth
// and has already happened by the time an event goes out.
type EventPublisher interface {
	// PublishAuthSucceeded announces a successful LNURL-auth.
	PublishAuthSucceeded(ctx context.Context, sessionID, pubKey string) error

	// PublishPaymentSettled announces an observed invoice settlement.
	PublishPaymentSettled(ctx context.Context, paymentID string, amountSats int64) error

	// PublishWithdrawalRedeemed announces a spent withdrawal token.
	PublishWithdrawalRedeemed(ctx context.Context, k1 string, amountSats int64) error

	// PublishChannelResolved announces a terminal channel request;
	// completed is false for a cancellation.
	PublishChannelResolved(ctx context.Context, k1 string, completed bool) error
}
