package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/lnurld/core"
	"github.com/layer-3/lnurld/ports"
)

// MemoryStore is an in-memory implementation of the Store interface,
// used for tests and single-process development setups. A single mutex
// serializes all mutations, which gives every transition the required
// check-and-set atomicity.
type MemoryStore struct {
	mu sync.RWMutex

	sessions    map[string]*core.AuthSession    // keyed by k1
	sessionK1s  map[string]string               // session ID -> k1
	payments    map[string]*core.PaymentRequest // keyed by payment ID
	withdrawals map[string]*core.WithdrawalToken
	channels    map[string]*core.ChannelRequest
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*core.AuthSession),
		sessionK1s:  make(map[string]string),
		payments:    make(map[string]*core.PaymentRequest),
		withdrawals: make(map[string]*core.WithdrawalToken),
		channels:    make(map[string]*core.ChannelRequest),
	}
}

var _ ports.Store = (*MemoryStore)(nil)

// CreateSession persists a new auth session.
func (s *MemoryStore) CreateSession(ctx context.Context, session *core.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.K1]; exists {
		return fmt.Errorf("%w: duplicate k1", core.ErrStore)
	}

	cloned := *session
	s.sessions[session.K1] = &cloned
	s.sessionK1s[session.ID] = session.K1

	return nil
}

// SessionByK1 returns a copy of the session owning the given challenge.
func (s *MemoryStore) SessionByK1(ctx context.Context, k1 string) (*core.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[k1]
	if !exists {
		return nil, core.ErrChallengeNotFound
	}

	cloned := *session
	return &cloned, nil
}

// SessionByID returns a copy of the session with the given identifier.
func (s *MemoryStore) SessionByID(ctx context.Context, id string) (*core.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k1, exists := s.sessionK1s[id]
	if !exists {
		return nil, core.ErrSessionNotFound
	}

	cloned := *s.sessions[k1]
	return &cloned, nil
}

// AuthenticateSession atomically binds pubKey to the session owning k1.
func (s *MemoryStore) AuthenticateSession(ctx context.Context, k1, pubKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[k1]
	if !exists {
		return core.ErrChallengeNotFound
	}

	if session.Authenticated {
		// Re-verifying with the same key is harmless; a different key
		// must observe the winner's state as a conflict.
		if session.PubKey == pubKey {
			return nil
		}
		return core.ErrInvalidSignature
	}

	session.Authenticated = true
	session.PubKey = pubKey
	session.AuthenticatedAt = at

	return nil
}

// DeleteExpiredSessions removes every session past its deadline.
func (s *MemoryStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for k1, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, k1)
			delete(s.sessionK1s, session.ID)
			deleted++
		}
	}

	return deleted, nil
}

// CreatePayment persists a new pay config.
func (s *MemoryStore) CreatePayment(ctx context.Context, payment *core.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[payment.ID]; exists {
		return fmt.Errorf("%w: duplicate payment id", core.ErrStore)
	}

	cloned := *payment
	s.payments[payment.ID] = &cloned

	return nil
}

// PaymentByID returns a copy of the pay config with the given identifier.
func (s *MemoryStore) PaymentByID(ctx context.Context, id string) (*core.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, exists := s.payments[id]
	if !exists {
		return nil, core.ErrPaymentNotFound
	}

	cloned := *payment
	return &cloned, nil
}

// AttachInvoice records the invoice issued against a pay config.
func (s *MemoryStore) AttachInvoice(ctx context.Context, id, paymentHash string, amountSats int64, description, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, exists := s.payments[id]
	if !exists {
		return core.ErrPaymentNotFound
	}

	if payment.InvoiceIssued() {
		return core.ErrInvoiceIssued
	}

	payment.PaymentHash = paymentHash
	payment.AmountSats = amountSats
	payment.Description = description
	payment.Comment = comment

	return nil
}

// MarkPaymentPaid flips a payment to paid.
func (s *MemoryStore) MarkPaymentPaid(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, exists := s.payments[id]
	if !exists {
		return core.ErrPaymentNotFound
	}

	payment.Paid = true
	return nil
}

// PendingPayments returns all unpaid payments with an attached invoice.
func (s *MemoryStore) PendingPayments(ctx context.Context) ([]*core.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*core.PaymentRequest
	for _, payment := range s.payments {
		if !payment.Paid && payment.InvoiceIssued() {
			cloned := *payment
			pending = append(pending, &cloned)
		}
	}

	return pending, nil
}

// CreateWithdrawal persists a new withdrawal token.
func (s *MemoryStore) CreateWithdrawal(ctx context.Context, token *core.WithdrawalToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.withdrawals[token.K1]; exists {
		return fmt.Errorf("%w: duplicate k1", core.ErrStore)
	}

	cloned := *token
	s.withdrawals[token.K1] = &cloned

	return nil
}

// WithdrawalByK1 returns a copy of the withdrawal token for k1.
func (s *MemoryStore) WithdrawalByK1(ctx context.Context, k1 string) (*core.WithdrawalToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, exists := s.withdrawals[k1]
	if !exists {
		return nil, core.ErrWithdrawalNotFound
	}

	cloned := *token
	return &cloned, nil
}

// SpendWithdrawal flips a token to used; exactly one racing caller wins.
func (s *MemoryStore) SpendWithdrawal(ctx context.Context, k1 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, exists := s.withdrawals[k1]
	if !exists {
		return core.ErrWithdrawalNotFound
	}

	if token.Used {
		return core.ErrWithdrawalUsed
	}

	token.Used = true
	return nil
}

// CreateChannel persists a new channel request.
func (s *MemoryStore) CreateChannel(ctx context.Context, request *core.ChannelRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.channels[request.K1]; exists {
		return fmt.Errorf("%w: duplicate k1", core.ErrStore)
	}

	cloned := *request
	s.channels[request.K1] = &cloned

	return nil
}

// ChannelByK1 returns a copy of the channel request for k1.
func (s *MemoryStore) ChannelByK1(ctx context.Context, k1 string) (*core.ChannelRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, exists := s.channels[k1]
	if !exists {
		return nil, core.ErrChannelNotFound
	}

	cloned := *request
	return &cloned, nil
}

// CompleteChannel moves a channel request to the completed terminal
// state.
func (s *MemoryStore) CompleteChannel(ctx context.Context, k1 string) error {
	return s.resolveChannel(k1, func(request *core.ChannelRequest) {
		request.Completed = true
	})
}

// CancelChannel moves a channel request to the cancelled terminal state.
func (s *MemoryStore) CancelChannel(ctx context.Context, k1 string) error {
	return s.resolveChannel(k1, func(request *core.ChannelRequest) {
		request.Cancelled = true
	})
}

func (s *MemoryStore) resolveChannel(k1 string, apply func(*core.ChannelRequest)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, exists := s.channels[k1]
	if !exists {
		return core.ErrChannelNotFound
	}

	if request.Resolved() {
		return core.ErrChannelResolved
	}

	apply(request)
	return nil
}
