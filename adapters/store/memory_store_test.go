package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/layer-3/lnurld/core"
)

var testTime = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func testSession(k1, id string) *core.AuthSession {
	return &core.AuthSession{
		ID:        id,
		K1:        k1,
		Action:    core.ActionLogin,
		CreatedAt: testTime,
		ExpiresAt: testTime.Add(10 * time.Minute),
	}
}

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateSession(ctx, testSession("k1-a", "id-a")))

	// Duplicate k1 is a store fault, not a rejection.
	err := s.CreateSession(ctx, testSession("k1-a", "id-b"))
	require.ErrorIs(t, err, core.ErrStore)

	session, err := s.SessionByK1(ctx, "k1-a")
	require.NoError(t, err)
	require.Equal(t, "id-a", session.ID)
	require.False(t, session.Authenticated)

	byID, err := s.SessionByID(ctx, "id-a")
	require.NoError(t, err)
	require.Equal(t, "k1-a", byID.K1)

	_, err = s.SessionByK1(ctx, "k1-missing")
	require.ErrorIs(t, err, core.ErrChallengeNotFound)

	_, err = s.SessionByID(ctx, "id-missing")
	require.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestMemoryStoreAuthenticateSession(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateSession(ctx, testSession("k1-a", "id-a")))

	at := testTime.Add(time.Minute)
	require.NoError(t, s.AuthenticateSession(ctx, "k1-a", "02aa", at))

	session, err := s.SessionByK1(ctx, "k1-a")
	require.NoError(t, err)
	require.True(t, session.Authenticated)
	require.Equal(t, "02aa", session.PubKey)
	require.Equal(t, at, session.AuthenticatedAt)

	// Same key again is idempotent.
	require.NoError(t, s.AuthenticateSession(ctx, "k1-a", "02aa", at.Add(time.Minute)))

	// A different key must observe a conflict, never overwrite.
	err = s.AuthenticateSession(ctx, "k1-a", "02bb", at)
	require.ErrorIs(t, err, core.ErrInvalidSignature)

	session, err = s.SessionByK1(ctx, "k1-a")
	require.NoError(t, err)
	require.Equal(t, "02aa", session.PubKey)

	err = s.AuthenticateSession(ctx, "k1-missing", "02aa", at)
	require.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestMemoryStoreAuthenticateSessionConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateSession(ctx, testSession("k1-a", "id-a")))

	keys := []string{"02aa", "02bb", "02cc", "02dd"}
	errs := make([]error, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			errs[i] = s.AuthenticateSession(ctx, "k1-a", key, testTime)
		}(i, key)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, core.ErrInvalidSignature)
		}
	}
	require.Equal(t, 1, wins)

	session, err := s.SessionByK1(ctx, "k1-a")
	require.NoError(t, err)
	require.True(t, session.Authenticated)
	require.Contains(t, keys, session.PubKey)
}

func TestMemoryStoreDeleteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	fresh := testSession("k1-fresh", "id-fresh")
	stale := testSession("k1-stale", "id-stale")
	stale.ExpiresAt = testTime.Add(-time.Minute)

	require.NoError(t, s.CreateSession(ctx, fresh))
	require.NoError(t, s.CreateSession(ctx, stale))

	deleted, err := s.DeleteExpiredSessions(ctx, testTime)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = s.SessionByK1(ctx, "k1-stale")
	require.ErrorIs(t, err, core.ErrChallengeNotFound)
	_, err = s.SessionByID(ctx, "id-stale")
	require.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = s.SessionByK1(ctx, "k1-fresh")
	require.NoError(t, err)
}

func TestMemoryStorePaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	payment := &core.PaymentRequest{
		ID:              "pay-1",
		MinSendableMsat: 1000,
		MaxSendableMsat: 5000,
		CommentAllowed:  32,
		CreatedAt:       testTime,
	}
	require.NoError(t, s.CreatePayment(ctx, payment))

	// No invoice attached yet, so nothing is pending.
	pending, err := s.PendingPayments(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, s.AttachInvoice(ctx, "pay-1", "hash-1", 2, "coffee", "thanks"))

	// A second invoice must be refused.
	err = s.AttachInvoice(ctx, "pay-1", "hash-2", 3, "coffee", "")
	require.ErrorIs(t, err, core.ErrInvoiceIssued)

	loaded, err := s.PaymentByID(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, "hash-1", loaded.PaymentHash)
	require.Equal(t, int64(2), loaded.AmountSats)
	require.Equal(t, "thanks", loaded.Comment)
	require.False(t, loaded.Paid)

	pending, err = s.PendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.MarkPaymentPaid(ctx, "pay-1"))
	// Marking twice is a no-op.
	require.NoError(t, s.MarkPaymentPaid(ctx, "pay-1"))

	loaded, err = s.PaymentByID(ctx, "pay-1")
	require.NoError(t, err)
	require.True(t, loaded.Paid)

	pending, err = s.PendingPayments(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestMemoryStoreSpendWithdrawalConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateWithdrawal(ctx, &core.WithdrawalToken{
		K1:         "k1-w",
		AmountSats: 1000,
		CreatedAt:  testTime,
	}))

	const redeemers = 8
	errs := make([]error, redeemers)

	var wg sync.WaitGroup
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.SpendWithdrawal(ctx, "k1-w")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, core.ErrWithdrawalUsed)
		}
	}
	require.Equal(t, 1, wins)

	err := s.SpendWithdrawal(ctx, "k1-missing")
	require.ErrorIs(t, err, core.ErrWithdrawalNotFound)
}

func TestMemoryStoreChannelTerminalStates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	request := &core.ChannelRequest{
		K1:        "k1-c",
		RemoteID:  "02remote",
		Private:   true,
		CreatedAt: testTime,
	}
	require.NoError(t, s.CreateChannel(ctx, request))

	require.NoError(t, s.CompleteChannel(ctx, "k1-c"))

	// Terminal means terminal: neither flag can be set afterwards.
	require.ErrorIs(t, s.CancelChannel(ctx, "k1-c"), core.ErrChannelResolved)
	require.ErrorIs(t, s.CompleteChannel(ctx, "k1-c"), core.ErrChannelResolved)

	loaded, err := s.ChannelByK1(ctx, "k1-c")
	require.NoError(t, err)
	require.True(t, loaded.Completed)
	require.False(t, loaded.Cancelled)

	require.NoError(t, s.CreateChannel(ctx, &core.ChannelRequest{
		K1: "k1-c2", RemoteID: "02remote", CreatedAt: testTime,
	}))
	require.NoError(t, s.CancelChannel(ctx, "k1-c2"))
	require.ErrorIs(t, s.CompleteChannel(ctx, "k1-c2"), core.ErrChannelResolved)
}

func TestMemoryStoreCopiesAreDetached(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateSession(ctx, testSession("k1-a", "id-a")))

	session, err := s.SessionByK1(ctx, "k1-a")
	require.NoError(t, err)

	// Mutating the returned copy must not change stored state.
	session.Authenticated = true
	session.PubKey = "02evil"

	reloaded, err := s.SessionByK1(ctx, "k1-a")
	require.NoError(t, err)
	require.False(t, reloaded.Authenticated)
	require.Empty(t, reloaded.PubKey)
}
