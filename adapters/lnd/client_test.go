package lnd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const testMacaroon = "0201036c6e64"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{
		BaseURL:     server.URL,
		MacaroonHex: testMacaroon,
	}, server.Client())
}

func TestAddInvoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/invoices", r.URL.Path)
		require.Equal(t, testMacaroon, r.Header.Get("Grpc-Metadata-Macaroon"))

		var req struct {
			Memo      string `json:"memo"`
			ValueMsat string `json:"value_msat"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "coffee", req.Memo)
		require.Equal(t, "21000", req.ValueMsat)

		hash := base64.StdEncoding.EncodeToString([]byte{0xde, 0xad, 0xbe, 0xef})
		_ = json.NewEncoder(w).Encode(map[string]string{
			"payment_request": "lnbcrt210n1fake",
			"r_hash":          hash,
		})
	})

	invoice, err := client.AddInvoice(context.Background(), "coffee", 21000)
	require.NoError(t, err)
	require.Equal(t, "lnbcrt210n1fake", invoice.PaymentRequest)
	require.Equal(t, "deadbeef", invoice.PaymentHash)
}

func TestInvoiceStatus(t *testing.T) {
	settled := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/invoice/deadbeef", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"settled": settled})
	})

	got, err := client.InvoiceStatus(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.False(t, got)

	settled = true
	got, err = client.InvoiceStatus(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.True(t, got)
}

func TestInvoiceStatusStateField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"state": "SETTLED"})
	})

	got, err := client.InvoiceStatus(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.True(t, got)
}

func TestPayInvoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/channels/transactions", r.URL.Path)

		var req struct {
			PaymentRequest string `json:"payment_request"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "lnbcrt1fake", req.PaymentRequest)

		_ = json.NewEncoder(w).Encode(map[string]string{"payment_error": ""})
	})

	require.NoError(t, client.PayInvoice(context.Background(), "lnbcrt1fake"))
}

func TestPayInvoicePaymentError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"payment_error": "no route"})
	})

	err := client.PayInvoice(context.Background(), "lnbcrt1fake")
	require.ErrorContains(t, err, "no route")
}

func TestOpenChannel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/channels", r.URL.Path)

		var req struct {
			NodePubkeyString   string `json:"node_pubkey_string"`
			LocalFundingAmount string `json:"local_funding_amount"`
			Private            bool   `json:"private"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "02abcdef", req.NodePubkeyString)
		require.Equal(t, "50000", req.LocalFundingAmount)
		require.True(t, req.Private)

		_ = json.NewEncoder(w).Encode(map[string]string{"funding_txid_str": "txid"})
	})

	require.NoError(t, client.OpenChannel(context.Background(), "02abcdef", 50_000, true))
}

func TestNodeInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/getinfo", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"identity_pubkey": "02node",
			"alias":           "lnurld",
			"uris":            []string{"02node@127.0.0.1:9735"},
			"synced_to_chain": true,
		})
	})

	info, err := client.NodeInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "02node", info.PubKey)
	require.Equal(t, "lnurld", info.Alias)
	require.Equal(t, []string{"02node@127.0.0.1:9735"}, info.URIs)
	require.True(t, info.SyncedToChain)
}

func TestNewAddress(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/newaddress", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"address": "bcrt1qaddr"})
	})

	address, err := client.NewAddress(context.Background())
	require.NoError(t, err)
	require.Equal(t, "bcrt1qaddr", address)
}

func TestErrorResponses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "unable to locate invoice",
			"code":    5,
		})
	})

	_, err := client.InvoiceStatus(context.Background(), "deadbeef")
	require.ErrorContains(t, err, "404")
	require.ErrorContains(t, err, "unable to locate invoice")
}
