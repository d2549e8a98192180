package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/lnurld/ports"
)

// Topics the publisher emits on. Consumers subscribe per flow.
const (
	TopicAuthSucceeded      = "lnurl.auth.succeeded"
	TopicPaymentSettled     = "lnurl.payment.settled"
	TopicWithdrawalRedeemed = "lnurl.withdrawal.redeemed"
	TopicChannelResolved    = "lnurl.channel.resolved"
)

// AuthSucceededEvent is emitted when a wallet proves key ownership.
type AuthSucceededEvent struct {
	SessionID string `json:"session_id"`
	PubKey    string `json:"pub_key"`
}

// PaymentSettledEvent is emitted when an invoice settlement is recorded.
type PaymentSettledEvent struct {
	PaymentID  string `json:"payment_id"`
	AmountSats int64  `json:"amount_sats"`
}

// WithdrawalRedeemedEvent is emitted when a withdrawal token is spent and
// its payout dispatched.
type WithdrawalRedeemedEvent struct {
	K1         string `json:"k1"`
	AmountSats int64  `json:"amount_sats"`
}

// ChannelResolvedEvent is emitted when a channel request reaches a
// terminal state. Completed is false for cancellations.
type ChannelResolvedEvent struct {
	K1        string `json:"k1"`
	Completed bool   `json:"completed"`
}

// WatermillPublisher implements the EventPublisher interface using
// Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// PublishAuthSucceeded publishes an authentication event.
func (p *WatermillPublisher) PublishAuthSucceeded(ctx context.Context, sessionID, pubKey string) error {
	return p.publish(TopicAuthSucceeded, AuthSucceededEvent{
		SessionID: sessionID,
		PubKey:    pubKey,
	})
}

// PublishPaymentSettled publishes a settlement event.
func (p *WatermillPublisher) PublishPaymentSettled(ctx context.Context, paymentID string, amountSats int64) error {
	return p.publish(TopicPaymentSettled, PaymentSettledEvent{
		PaymentID:  paymentID,
		AmountSats: amountSats,
	})
}

// PublishWithdrawalRedeemed publishes a withdrawal redemption event.
func (p *WatermillPublisher) PublishWithdrawalRedeemed(ctx context.Context, k1 string, amountSats int64) error {
	return p.publish(TopicWithdrawalRedeemed, WithdrawalRedeemedEvent{
		K1:         k1,
		AmountSats: amountSats,
	})
}

// PublishChannelResolved publishes a channel resolution event.
func (p *WatermillPublisher) PublishChannelResolved(ctx context.Context, k1 string, completed bool) error {
	return p.publish(TopicChannelResolved, ChannelResolvedEvent{
		K1:        k1,
		Completed: completed,
	})
}
