package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"

	"github.com/layer-3/lnurld/core"
	"github.com/layer-3/lnurld/lnurl"
	"github.com/layer-3/lnurld/ports"
)

// PaymentConfig carries the server-side policy for the pay, withdraw and
// channel flows.
type PaymentConfig struct {
	// PayCallbackURL, WithdrawCallbackURL and ChannelCallbackURL are the
	// public callback bases, without query parameters. The pay callback
	// gets "/<id>" appended.
	PayCallbackURL      string
	WithdrawCallbackURL string
	ChannelCallbackURL  string

	// MinSendableMsat and MaxSendableMsat are the absolute bounds a pay
	// config may be created within, and the defaults when a config does
	// not override them.
	MinSendableMsat int64
	MaxSendableMsat int64

	// MaxCommentLength caps the comment allowance a pay config may ask
	// for.
	MaxCommentLength int

	// Description is the LUD-06 metadata text shown by wallets.
	Description string

	// WithdrawAmountSats is the fixed entitlement of a withdrawal token.
	// Server policy, never client-supplied.
	WithdrawAmountSats int64

	// ChannelAmountSats is the local funding amount for channel opens.
	ChannelAmountSats int64

	// InvoicePrefix is the BOLT-11 prefix of the configured network.
	InvoicePrefix string

	// OracleTimeout bounds every call to the Lightning node.
	OracleTimeout time.Duration
}

// PaymentService owns the lifecycle of pay configs, withdrawal tokens and
// channel requests, from URL generation to terminal state.
type PaymentService struct {
	store  ports.Store
	ln     ports.LightningClient
	events ports.EventPublisher
	clock  clock.Clock
	log    zerolog.Logger
	cfg    PaymentConfig
}

// NewPaymentService creates a new payment lifecycle service.
func NewPaymentService(store ports.Store, ln ports.LightningClient,
	events ports.EventPublisher, clk clock.Clock, log zerolog.Logger,
	cfg PaymentConfig) *PaymentService {

	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = 10 * time.Second
	}

	return &PaymentService{
		store:  store,
		ln:     ln,
		events: events,
		clock:  clk,
		log:    log.With().Str("component", "payments").Logger(),
		cfg:    cfg,
	}
}

// CreatePayParams are the optional overrides for a new pay config. Nil
// fields fall back to the configured defaults; zero is a meaningful value
// for CommentAllowed and must survive as given.
type CreatePayParams struct {
	MinSendableMsat *int64
	MaxSendableMsat *int64
	CommentAllowed  *int
}

// CreatePayRequest validates the requested bounds and persists a new pay
// config under a fresh opaque identifier. The returned config carries the
// effective bounds.
func (s *PaymentService) CreatePayRequest(ctx context.Context, params CreatePayParams) (*core.PaymentRequest, error) {
	minMsat := s.cfg.MinSendableMsat
	if params.MinSendableMsat != nil {
		minMsat = *params.MinSendableMsat
	}
	maxMsat := s.cfg.MaxSendableMsat
	if params.MaxSendableMsat != nil {
		maxMsat = *params.MaxSendableMsat
	}
	commentAllowed := s.cfg.MaxCommentLength
	if params.CommentAllowed != nil {
		commentAllowed = *params.CommentAllowed
	}

	if minMsat <= 0 || maxMsat < minMsat {
		return nil, core.ErrAmountOutOfRange
	}
	if minMsat < s.cfg.MinSendableMsat || maxMsat > s.cfg.MaxSendableMsat {
		return nil, core.ErrAmountOutOfRange
	}
	if commentAllowed < 0 || commentAllowed > s.cfg.MaxCommentLength {
		return nil, core.ErrCommentTooLong
	}

	payment := &core.PaymentRequest{
		ID:              uuid.New().String(),
		MinSendableMsat: minMsat,
		MaxSendableMsat: maxMsat,
		CommentAllowed:  commentAllowed,
		CreatedAt:       s.clock.Now(),
	}

	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return payment, nil
}

// PayParams is the LUD-06 first-step response for a pay config.
type PayParams struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	CommentAllowed int    `json:"commentAllowed"`
	Tag            string `json:"tag"`
}

// PayParams returns the wallet-facing parameters of a pay config.
func (s *PaymentService) PayParams(ctx context.Context, id string) (*PayParams, error) {
	payment, err := s.store.PaymentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal([][]string{{"text/plain", s.cfg.Description}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	return &PayParams{
		Callback:       s.cfg.PayCallbackURL + "/" + payment.ID,
		MinSendable:    payment.MinSendableMsat,
		MaxSendable:    payment.MaxSendableMsat,
		Metadata:       string(metadata),
		CommentAllowed: payment.CommentAllowed,
		Tag:            "payRequest",
	}, nil
}

// RequestInvoice issues a BOLT-11 invoice against a pay config and
// attaches its payment hash for later settlement tracking. amountMsat
// must fall within the config's bounds and the comment within its
// allowance.
func (s *PaymentService) RequestInvoice(ctx context.Context, id string, amountMsat int64, comment string) (string, error) {
	payment, err := s.store.PaymentByID(ctx, id)
	if err != nil {
		return "", err
	}

	if amountMsat < payment.MinSendableMsat || amountMsat > payment.MaxSendableMsat {
		return "", core.ErrAmountOutOfRange
	}
	if len(comment) > payment.CommentAllowed {
		return "", core.ErrCommentTooLong
	}
	if payment.InvoiceIssued() {
		return "", core.ErrInvoiceIssued
	}

	memo := s.cfg.Description
	if comment != "" {
		memo += ": " + comment
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OracleTimeout)
	defer cancel()

	invoice, err := s.ln.AddInvoice(callCtx, memo, amountMsat)
	if err != nil {
		return "", fmt.Errorf("%w: failed to add invoice: %v", core.ErrOracleUnavailable, err)
	}

	err = s.store.AttachInvoice(ctx, id, invoice.PaymentHash,
		amountMsat/1000, s.cfg.Description, comment)
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("payment_id", id).
		Str("payment_hash", invoice.PaymentHash).
		Int64("amount_msat", amountMsat).
		Msg("invoice issued")

	return invoice.PaymentRequest, nil
}

// PaymentStatus is the settlement view of a pay config. Stale is set when
// the node could not be reached and Paid reflects the last known local
// state.
type PaymentStatus struct {
	Paid        bool
	AmountSats  int64
	PaymentHash string
	Stale       bool
}

// PaymentStatus reports whether the invoice behind a pay config settled.
// A locally recorded settlement is answered straight from the store;
// otherwise the node is asked once and a positive answer is persisted
// before responding. An unreachable node degrades to the best-known local
// state instead of failing the read.
func (s *PaymentService) PaymentStatus(ctx context.Context, id string) (*PaymentStatus, error) {
	payment, err := s.store.PaymentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &PaymentStatus{
		Paid:        payment.Paid,
		AmountSats:  payment.AmountSats,
		PaymentHash: payment.PaymentHash,
	}

	if payment.Paid || !payment.InvoiceIssued() {
		return status, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OracleTimeout)
	defer cancel()

	settled, err := s.ln.InvoiceStatus(callCtx, payment.PaymentHash)
	if err != nil {
		s.log.Warn().Err(err).
			Str("payment_id", id).
			Msg("settlement check failed, answering from local state")
		status.Stale = true
		return status, nil
	}

	if settled {
		if err := s.store.MarkPaymentPaid(ctx, id); err != nil {
			return nil, err
		}
		status.Paid = true

		if err := s.events.PublishPaymentSettled(ctx, id, payment.AmountSats); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish settlement event")
		}
	}

	return status, nil
}

// CreateWithdrawal persists a fresh withdrawal token. The amount comes
// from server configuration so a client can never inflate its own
// entitlement.
func (s *PaymentService) CreateWithdrawal(ctx context.Context) (*core.WithdrawalToken, error) {
	k1, err := lnurl.RandomK1()
	if err != nil {
		return nil, fmt.Errorf("failed to generate withdrawal token: %w", err)
	}

	token := &core.WithdrawalToken{
		K1:         k1,
		AmountSats: s.cfg.WithdrawAmountSats,
		CreatedAt:  s.clock.Now(),
	}

	if err := s.store.CreateWithdrawal(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}

	return token, nil
}

// WithdrawParams is the LUD-03 first-step response for a withdrawal
// token.
type WithdrawParams struct {
	Callback           string `json:"callback"`
	K1                 string `json:"k1"`
	MinWithdrawable    int64  `json:"minWithdrawable"`
	MaxWithdrawable    int64  `json:"maxWithdrawable"`
	DefaultDescription string `json:"defaultDescription"`
	Tag                string `json:"tag"`
}

// WithdrawParams returns the wallet-facing parameters of a withdrawal
// token. A spent token is rejected here already so a wallet does not
// build an invoice it can never redeem.
func (s *PaymentService) WithdrawParams(ctx context.Context, k1 string) (*WithdrawParams, error) {
	token, err := s.store.WithdrawalByK1(ctx, k1)
	if err != nil {
		return nil, err
	}
	if token.Used {
		return nil, core.ErrWithdrawalUsed
	}

	amountMsat := token.AmountSats * 1000
	return &WithdrawParams{
		Callback:           s.cfg.WithdrawCallbackURL,
		K1:                 token.K1,
		MinWithdrawable:    amountMsat,
		MaxWithdrawable:    amountMsat,
		DefaultDescription: s.cfg.Description,
		Tag:                "withdrawRequest",
	}, nil
}

// RedeemWithdrawal validates the invoice, atomically spends the token and
// dispatches the payment. The token is marked used before the payment
// goes out: a crash in between loses at most one payout, it can never
// produce two payouts for one token.
func (s *PaymentService) RedeemWithdrawal(ctx context.Context, k1, invoice string) error {
	token, err := s.store.WithdrawalByK1(ctx, k1)
	if err != nil {
		return err
	}
	if token.Used {
		return core.ErrWithdrawalUsed
	}

	if err := lnurl.ValidateInvoice(invoice, s.cfg.InvoicePrefix); err != nil {
		return core.ErrInvalidInvoice
	}

	// The check-and-set is the authoritative replay gate; the lookup
	// above only exists to reject early without burning the token.
	if err := s.store.SpendWithdrawal(ctx, k1); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OracleTimeout)
	defer cancel()

	if err := s.ln.PayInvoice(callCtx, invoice); err != nil {
		s.log.Error().Err(err).
			Str("k1", k1).
			Msg("withdrawal payment dispatch failed, token stays spent")
		return fmt.Errorf("%w: failed to pay invoice: %v", core.ErrOracleUnavailable, err)
	}

	s.log.Info().
		Str("k1", k1).
		Int64("amount_sats", token.AmountSats).
		Msg("withdrawal redeemed")

	if err := s.events.PublishWithdrawalRedeemed(ctx, k1, token.AmountSats); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish withdrawal event")
	}

	return nil
}

// CreateChannelRequest persists a new channel request towards remoteID.
func (s *PaymentService) CreateChannelRequest(ctx context.Context, remoteID string, private bool) (*core.ChannelRequest, error) {
	if _, err := lnurl.ParsePubKey(remoteID); err != nil {
		return nil, core.ErrInvalidPubKey
	}

	k1, err := lnurl.RandomK1()
	if err != nil {
		return nil, fmt.Errorf("failed to generate channel request: %w", err)
	}

	request := &core.ChannelRequest{
		K1:        k1,
		RemoteID:  remoteID,
		Private:   private,
		CreatedAt: s.clock.Now(),
	}

	if err := s.store.CreateChannel(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create channel request: %w", err)
	}

	return request, nil
}

// ChannelParams is the LUD-02 first-step response for a channel request.
type ChannelParams struct {
	URI      string `json:"uri"`
	Callback string `json:"callback"`
	K1       string `json:"k1"`
	Tag      string `json:"tag"`
}

// ChannelParams returns the wallet-facing parameters of a channel
// request, including the node URI the wallet should connect to.
func (s *PaymentService) ChannelParams(ctx context.Context, k1 string) (*ChannelParams, error) {
	request, err := s.store.ChannelByK1(ctx, k1)
	if err != nil {
		return nil, err
	}
	if request.Resolved() {
		return nil, core.ErrChannelResolved
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OracleTimeout)
	defer cancel()

	info, err := s.ln.NodeInfo(callCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get node info: %v", core.ErrOracleUnavailable, err)
	}

	uri := info.PubKey
	if len(info.URIs) > 0 {
		uri = info.URIs[0]
	}

	return &ChannelParams{
		URI:      uri,
		Callback: s.cfg.ChannelCallbackURL,
		K1:       request.K1,
		Tag:      "channelRequest",
	}, nil
}

// ResolveChannel drives a channel request to its terminal state. With
// cancel set, only the k1 needs to be valid. Otherwise remoteID must
// match the node the request was created for, and the stored remote
// node is dialed for a channel open; the request only completes once the
// node accepted the open, so a failed attempt stays retryable.
func (s *PaymentService) ResolveChannel(ctx context.Context, k1, remoteID string, cancel bool) error {
	request, err := s.store.ChannelByK1(ctx, k1)
	if err != nil {
		return err
	}
	if request.Resolved() {
		return core.ErrChannelResolved
	}

	if cancel {
		if err := s.store.CancelChannel(ctx, k1); err != nil {
			return err
		}

		s.log.Info().Str("k1", k1).Msg("channel request cancelled")

		if err := s.events.PublishChannelResolved(ctx, k1, false); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish channel event")
		}
		return nil
	}

	// The wallet echoes the remote node id; it must match the one the
	// request was created for.
	if remoteID != request.RemoteID {
		return core.ErrInvalidPubKey
	}

	callCtx, cancelCall := context.WithTimeout(ctx, s.cfg.OracleTimeout)
	defer cancelCall()

	err = s.ln.OpenChannel(callCtx, request.RemoteID, s.cfg.ChannelAmountSats, request.Private)
	if err != nil {
		return fmt.Errorf("%w: failed to open channel: %v", core.ErrOracleUnavailable, err)
	}

	if err := s.store.CompleteChannel(ctx, k1); err != nil {
		return err
	}

	s.log.Info().
		Str("k1", k1).
		Str("remote_id", request.RemoteID).
		Msg("channel open dispatched")

	if err := s.events.PublishChannelResolved(ctx, k1, true); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish channel event")
	}

	return nil
}

// FundingAddress returns a fresh on-chain address from the node.
func (s *PaymentService) FundingAddress(ctx context.Context) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OracleTimeout)
	defer cancel()

	address, err := s.ln.NewAddress(callCtx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to get address: %v", core.ErrOracleUnavailable, err)
	}

	return address, nil
}
