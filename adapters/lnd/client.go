// Package lnd talks to an lnd node over its REST gateway.
package lnd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/layer-3/lnurld/ports"
)

// Config carries the connection parameters for the REST gateway.
type Config struct {
	// BaseURL is the gateway root, e.g. "https://localhost:8080".
	BaseURL string

	// MacaroonHex is the hex-encoded admin or invoice macaroon, sent as
	// the Grpc-Metadata-Macaroon header on every request.
	MacaroonHex string
}

// Client implements ports.LightningClient against lnd's REST API.
type Client struct {
	baseURL     string
	macaroonHex string
	http        *http.Client
}

var _ ports.LightningClient = (*Client)(nil)

// NewClient creates a REST client. httpClient may carry custom TLS
// settings for the node's self-signed certificate; nil falls back to
// http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		macaroonHex: cfg.MacaroonHex,
		http:        httpClient,
	}
}

func (c *Client) call(ctx context.Context, method, path string, req, resp any) error {
	var body io.Reader
	if req != nil {
		encoded, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Grpc-Metadata-Macaroon", c.macaroonHex)
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request to node failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var restErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &restErr) == nil && restErr.Message != "" {
			return fmt.Errorf("node returned %d: %s", httpResp.StatusCode, restErr.Message)
		}
		return fmt.Errorf("node returned %d", httpResp.StatusCode)
	}

	if resp != nil {
		if err := json.Unmarshal(raw, resp); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// AddInvoice creates a new invoice on the node. The returned payment
// hash is hex-encoded.
func (c *Client) AddInvoice(ctx context.Context, memo string, amountMsat int64) (*ports.Invoice, error) {
	req := struct {
		Memo      string `json:"memo"`
		ValueMsat string `json:"value_msat"`
	}{
		Memo:      memo,
		ValueMsat: strconv.FormatInt(amountMsat, 10),
	}

	var resp struct {
		PaymentRequest string `json:"payment_request"`
		RHash          string `json:"r_hash"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/invoices", &req, &resp); err != nil {
		return nil, err
	}

	// The gateway encodes byte fields as base64.
	hash, err := base64.StdEncoding.DecodeString(resp.RHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payment hash: %w", err)
	}

	return &ports.Invoice{
		PaymentRequest: resp.PaymentRequest,
		PaymentHash:    hex.EncodeToString(hash),
	}, nil
}

// InvoiceStatus reports whether the invoice with the given hex payment
// hash settled.
func (c *Client) InvoiceStatus(ctx context.Context, paymentHash string) (bool, error) {
	var resp struct {
		Settled bool   `json:"settled"`
		State   string `json:"state"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/invoice/"+paymentHash, nil, &resp); err != nil {
		return false, err
	}

	return resp.Settled || resp.State == "SETTLED", nil
}

// PayInvoice pays a BOLT-11 invoice through the node.
func (c *Client) PayInvoice(ctx context.Context, invoice string) error {
	req := struct {
		PaymentRequest string `json:"payment_request"`
	}{PaymentRequest: invoice}

	var resp struct {
		PaymentError string `json:"payment_error"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/channels/transactions", &req, &resp); err != nil {
		return err
	}
	if resp.PaymentError != "" {
		return fmt.Errorf("payment failed: %s", resp.PaymentError)
	}

	return nil
}

// OpenChannel dispatches a synchronous channel open towards remoteID.
func (c *Client) OpenChannel(ctx context.Context, remoteID string, amountSats int64, private bool) error {
	req := struct {
		NodePubkeyString   string `json:"node_pubkey_string"`
		LocalFundingAmount string `json:"local_funding_amount"`
		Private            bool   `json:"private"`
	}{
		NodePubkeyString:   remoteID,
		LocalFundingAmount: strconv.FormatInt(amountSats, 10),
		Private:            private,
	}

	return c.call(ctx, http.MethodPost, "/v1/channels", &req, nil)
}

// NodeInfo returns the node's identity and sync state.
func (c *Client) NodeInfo(ctx context.Context) (*ports.NodeInfo, error) {
	var resp struct {
		IdentityPubkey string   `json:"identity_pubkey"`
		Alias          string   `json:"alias"`
		URIs           []string `json:"uris"`
		SyncedToChain  bool     `json:"synced_to_chain"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/getinfo", nil, &resp); err != nil {
		return nil, err
	}

	return &ports.NodeInfo{
		PubKey:        resp.IdentityPubkey,
		Alias:         resp.Alias,
		URIs:          resp.URIs,
		SyncedToChain: resp.SyncedToChain,
	}, nil
}

// NewAddress returns a fresh bech32 address from the node wallet.
func (c *Client) NewAddress(ctx context.Context) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/newaddress?type=WITNESS_PUBKEY_HASH", nil, &resp); err != nil {
		return "", err
	}

	return resp.Address, nil
}
