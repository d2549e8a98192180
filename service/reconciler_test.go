package service

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/lnurld/adapters/store"
	"github.com/layer-3/lnurld/core"
)

func newReconciler(t *testing.T) (*Reconciler, *store.MemoryStore, *fakeLightning, *recordingEvents, *clock.TestClock) {
	t.Helper()

	memory := store.NewMemoryStore()
	ln := newFakeLightning()
	events := newRecordingEvents()
	clk := clock.NewTestClock(testTime)

	r := NewReconciler(memory, ln, events, clk, testLogger(),
		ticker.NewForce(DefaultSweepInterval),
		ticker.NewForce(DefaultCleanupInterval),
		time.Second)

	return r, memory, ln, events, clk
}

func pendingPayment(t *testing.T, memory *store.MemoryStore, id, hash string) {
	t.Helper()

	ctx := context.Background()
	err := memory.CreatePayment(ctx, &core.PaymentRequest{
		ID:              id,
		MinSendableMsat: 1000,
		MaxSendableMsat: 100_000,
		CreatedAt:       testTime,
	})
	require.NoError(t, err)
	require.NoError(t, memory.AttachInvoice(ctx, id, hash, 5, "test", ""))
}

func TestSweepPaymentsRecordsSettlements(t *testing.T) {
	r, memory, ln, events, _ := newReconciler(t)
	ctx := context.Background()

	pendingPayment(t, memory, "pay-1", "hash-a")
	pendingPayment(t, memory, "pay-2", "hash-b")

	ln.settled["hash-a"] = true

	r.SweepPayments()

	settled, err := memory.PaymentByID(ctx, "pay-1")
	require.NoError(t, err)
	require.True(t, settled.Paid)

	open, err := memory.PaymentByID(ctx, "pay-2")
	require.NoError(t, err)
	require.False(t, open.Paid)

	require.Equal(t, []string{"pay-1"}, events.settledIDs)

	// Settled rows leave the pending set, the next sweep only checks
	// what is still open.
	before := ln.statusCalls["hash-a"]
	r.SweepPayments()
	require.Equal(t, before, ln.statusCalls["hash-a"])
	require.Equal(t, 2, ln.statusCalls["hash-b"])
}

func TestSweepPaymentsSurvivesRowFailure(t *testing.T) {
	r, memory, ln, events, _ := newReconciler(t)
	ctx := context.Background()

	pendingPayment(t, memory, "pay-1", "hash-a")
	pendingPayment(t, memory, "pay-2", "hash-b")
	pendingPayment(t, memory, "pay-3", "hash-c")

	// The middle row fails; the other two still settle in the same
	// pass.
	ln.settled["hash-a"] = true
	ln.settled["hash-c"] = true
	ln.statusErr["hash-b"] = errNodeDown

	r.SweepPayments()

	for _, id := range []string{"pay-1", "pay-3"} {
		payment, err := memory.PaymentByID(ctx, id)
		require.NoError(t, err)
		require.True(t, payment.Paid, id)
	}

	stuck, err := memory.PaymentByID(ctx, "pay-2")
	require.NoError(t, err)
	require.False(t, stuck.Paid)
	require.Len(t, events.settledIDs, 2)

	// Once the node recovers, the stuck row settles on the next pass.
	delete(ln.statusErr, "hash-b")
	ln.settled["hash-b"] = true

	r.SweepPayments()

	recovered, err := memory.PaymentByID(ctx, "pay-2")
	require.NoError(t, err)
	require.True(t, recovered.Paid)
}

func TestCleanupSessions(t *testing.T) {
	r, memory, _, _, clk := newReconciler(t)
	ctx := context.Background()

	require.NoError(t, memory.CreateSession(ctx, &core.AuthSession{
		ID:        "session-old",
		K1:        "aa",
		CreatedAt: testTime,
		ExpiresAt: testTime.Add(10 * time.Minute),
	}))
	require.NoError(t, memory.CreateSession(ctx, &core.AuthSession{
		ID:        "session-new",
		K1:        "bb",
		CreatedAt: testTime,
		ExpiresAt: testTime.Add(time.Hour),
	}))

	clk.SetTime(testTime.Add(30 * time.Minute))

	r.CleanupSessions()

	_, err := memory.SessionByK1(ctx, "aa")
	require.ErrorIs(t, err, core.ErrChallengeNotFound)

	kept, err := memory.SessionByK1(ctx, "bb")
	require.NoError(t, err)
	require.Equal(t, "session-new", kept.ID)
}

func TestReconcilerForcedTicks(t *testing.T) {
	memory := store.NewMemoryStore()
	ln := newFakeLightning()
	events := newRecordingEvents()
	clk := clock.NewTestClock(testTime)

	sweep := ticker.NewForce(DefaultSweepInterval)
	cleanup := ticker.NewForce(DefaultCleanupInterval)

	r := NewReconciler(memory, ln, events, clk, testLogger(),
		sweep, cleanup, time.Second)

	pendingPayment(t, memory, "pay-1", "hash-a")
	ln.settled["hash-a"] = true

	r.Start()
	defer r.Stop()

	sweep.Force <- testTime

	require.Eventually(t, func() bool {
		payment, err := memory.PaymentByID(context.Background(), "pay-1")
		return err == nil && payment.Paid
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, memory.CreateSession(context.Background(), &core.AuthSession{
		ID:        "session-old",
		K1:        "aa",
		CreatedAt: testTime,
		ExpiresAt: testTime.Add(time.Minute),
	}))
	clk.SetTime(testTime.Add(time.Hour))

	cleanup.Force <- testTime

	require.Eventually(t, func() bool {
		_, err := memory.SessionByK1(context.Background(), "aa")
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestReconcilerStopIsIdempotent(t *testing.T) {
	r, _, _, _, _ := newReconciler(t)

	r.Start()
	r.Start()
	r.Stop()
	r.Stop()
}
