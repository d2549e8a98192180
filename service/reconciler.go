package service

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rs/zerolog"

	"github.com/layer-3/lnurld/ports"
)

const (
	// DefaultSweepInterval is how often pending payments are checked
	// against the node.
	DefaultSweepInterval = 5 * time.Second

	// DefaultCleanupInterval is how often expired sessions are purged.
	// Expiry is already enforced at lookup time; this pass only bounds
	// storage growth.
	DefaultCleanupInterval = 5 * time.Minute
)

// Reconciler closes the gap between "request issued" and "request
// fulfilled": it polls the node for settlement of pending payments and
// garbage-collects expired auth sessions. The two tasks run on
// independent tickers so a failure in one never stops the other, and
// each task runs at most once at a time.
type Reconciler struct {
	store  ports.Store
	ln     ports.LightningClient
	events ports.EventPublisher
	clock  clock.Clock
	log    zerolog.Logger

	sweepTicker   ticker.Ticker
	cleanupTicker ticker.Ticker
	oracleTimeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// NewReconciler creates a reconciler. The tickers are injected so tests
// can force ticks; production wiring passes ticker.New with the
// configured intervals.
func NewReconciler(store ports.Store, ln ports.LightningClient,
	events ports.EventPublisher, clk clock.Clock, log zerolog.Logger,
	sweepTicker, cleanupTicker ticker.Ticker,
	oracleTimeout time.Duration) *Reconciler {

	if oracleTimeout <= 0 {
		oracleTimeout = 10 * time.Second
	}

	return &Reconciler{
		store:         store,
		ln:            ln,
		events:        events,
		clock:         clk,
		log:           log.With().Str("component", "reconciler").Logger(),
		sweepTicker:   sweepTicker,
		cleanupTicker: cleanupTicker,
		oracleTimeout: oracleTimeout,
		quit:          make(chan struct{}),
	}
}

// Start launches both background tasks. Safe to call once.
func (r *Reconciler) Start() {
	r.startOnce.Do(func() {
		r.sweepTicker.Resume()
		r.cleanupTicker.Resume()

		r.wg.Add(2)
		go r.sweepLoop()
		go r.cleanupLoop()

		r.log.Info().Msg("reconciler started")
	})
}

// Stop halts both tasks and waits for in-flight passes to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
		r.sweepTicker.Stop()
		r.cleanupTicker.Stop()
		r.wg.Wait()

		r.log.Info().Msg("reconciler stopped")
	})
}

// sweepLoop consumes sweep ticks one at a time. Running the pass inline
// in the loop is the single-flight guard: a slow sweep simply delays the
// next one, it can never overlap with itself.
func (r *Reconciler) sweepLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.sweepTicker.Ticks():
			r.SweepPayments()

		case <-r.quit:
			return
		}
	}
}

func (r *Reconciler) cleanupLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.cleanupTicker.Ticks():
			r.CleanupSessions()

		case <-r.quit:
			return
		}
	}
}

// SweepPayments checks every pending payment against the node and
// records observed settlements. A failure on one row is logged and the
// sweep moves on; the row is retried on the next pass.
func (r *Reconciler) SweepPayments() {
	ctx := context.Background()

	pending, err := r.store.PendingPayments(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to list pending payments")
		return
	}

	for _, payment := range pending {
		select {
		case <-r.quit:
			return
		default:
		}

		callCtx, cancel := context.WithTimeout(ctx, r.oracleTimeout)
		settled, err := r.ln.InvoiceStatus(callCtx, payment.PaymentHash)
		cancel()

		if err != nil {
			// Unknown, not unsettled. Retried next cycle.
			r.log.Warn().Err(err).
				Str("payment_id", payment.ID).
				Msg("settlement check failed")
			continue
		}
		if !settled {
			continue
		}

		if err := r.store.MarkPaymentPaid(ctx, payment.ID); err != nil {
			r.log.Error().Err(err).
				Str("payment_id", payment.ID).
				Msg("failed to record settlement")
			continue
		}

		r.log.Info().
			Str("payment_id", payment.ID).
			Int64("amount_sats", payment.AmountSats).
			Msg("payment settled")

		if err := r.events.PublishPaymentSettled(ctx, payment.ID, payment.AmountSats); err != nil {
			r.log.Warn().Err(err).Msg("failed to publish settlement event")
		}
	}
}

// CleanupSessions deletes every session past its deadline.
func (r *Reconciler) CleanupSessions() {
	ctx := context.Background()

	deleted, err := r.store.DeleteExpiredSessions(ctx, r.clock.Now())
	if err != nil {
		r.log.Error().Err(err).Msg("failed to delete expired sessions")
		return
	}

	if deleted > 0 {
		r.log.Debug().Int("deleted", deleted).Msg("expired sessions purged")
	}
}
