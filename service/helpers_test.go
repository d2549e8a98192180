package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/lnurld/core"
	"github.com/layer-3/lnurld/ports"
)

var testTime = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

var errNodeDown = errors.New("connection refused")

// fakeLightning is an in-memory settlement oracle with scriptable
// failures.
type fakeLightning struct {
	mu sync.Mutex

	invoiceCount int
	addErr       error

	settled     map[string]bool
	statusErr   map[string]error
	statusCalls map[string]int

	payErr error
	paid   []string

	openErr error
	opened  []string

	info    *ports.NodeInfo
	address string
}

func newFakeLightning() *fakeLightning {
	return &fakeLightning{
		settled:     make(map[string]bool),
		statusErr:   make(map[string]error),
		statusCalls: make(map[string]int),
		info: &ports.NodeInfo{
			PubKey:        "02node",
			Alias:         "test",
			URIs:          []string{"02node@127.0.0.1:9735"},
			SyncedToChain: true,
		},
		address: "bcrt1qtest",
	}
}

func (f *fakeLightning) AddInvoice(ctx context.Context, memo string, amountMsat int64) (*ports.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.addErr != nil {
		return nil, f.addErr
	}

	f.invoiceCount++
	hash := fmt.Sprintf("hash-%d", f.invoiceCount)
	return &ports.Invoice{
		PaymentRequest: fmt.Sprintf("lnbcrt-fake-%d", f.invoiceCount),
		PaymentHash:    hash,
	}, nil
}

func (f *fakeLightning) InvoiceStatus(ctx context.Context, paymentHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusCalls[paymentHash]++
	if err := f.statusErr[paymentHash]; err != nil {
		return false, err
	}
	return f.settled[paymentHash], nil
}

func (f *fakeLightning) PayInvoice(ctx context.Context, invoice string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.payErr != nil {
		return f.payErr
	}
	f.paid = append(f.paid, invoice)
	return nil
}

func (f *fakeLightning) OpenChannel(ctx context.Context, remoteID string, amountSats int64, private bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, remoteID)
	return nil
}

func (f *fakeLightning) NodeInfo(ctx context.Context) (*ports.NodeInfo, error) {
	return f.info, nil
}

func (f *fakeLightning) NewAddress(ctx context.Context) (string, error) {
	return f.address, nil
}

// recordingEvents captures published events.
type recordingEvents struct {
	mu          sync.Mutex
	authed      []string
	settledIDs  []string
	redeemedK1s []string
	channels    map[string]bool
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{channels: make(map[string]bool)}
}

func (r *recordingEvents) PublishAuthSucceeded(ctx context.Context, sessionID, pubKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authed = append(r.authed, sessionID)
	return nil
}

func (r *recordingEvents) PublishPaymentSettled(ctx context.Context, paymentID string, amountSats int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settledIDs = append(r.settledIDs, paymentID)
	return nil
}

func (r *recordingEvents) PublishWithdrawalRedeemed(ctx context.Context, k1 string, amountSats int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redeemedK1s = append(r.redeemedK1s, k1)
	return nil
}

func (r *recordingEvents) PublishChannelResolved(ctx context.Context, k1 string, completed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[k1] = completed
	return nil
}

// staticTokenizer issues predictable tokens.
type staticTokenizer struct{}

func (staticTokenizer) SessionToToken(session *core.AuthSession) (string, error) {
	return "token-for-" + session.PubKey, nil
}

func (staticTokenizer) TokenToPubKey(token string) (string, error) {
	return "", errors.New("not implemented")
}

// testInvoice builds a structurally valid bech32 invoice for the given
// network prefix.
func testInvoice(t *testing.T, prefix string) string {
	t.Helper()

	converted, err := bech32.ConvertBits(make([]byte, 48), 8, 5, true)
	require.NoError(t, err)

	invoice, err := bech32.Encode(prefix+"20m", converted)
	require.NoError(t, err)

	return invoice
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
