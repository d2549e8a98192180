package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/layer-3/lnurld/core"
	"github.com/layer-3/lnurld/lnurl"
	"github.com/layer-3/lnurld/ports"
	"github.com/layer-3/lnurld/service"
)

// statusOK is the LNURL wire acknowledgement for wallet callbacks.
var statusOK = gin.H{"status": "OK"}

// walletError answers a wallet callback with the LNURL wire error shape.
// Wallets only parse the body, so the HTTP status stays 200.
func walletError(c *gin.Context, err error) {
	c.JSON(http.StatusOK, gin.H{"status": "ERROR", "reason": reasonFor(err)})
}

// reasonFor maps an error to a wallet-displayable reason. Protocol
// rejections carry their own message; everything else is collapsed so
// internals never leak onto a wallet screen.
func reasonFor(err error) string {
	if core.IsRejection(err) {
		return err.Error()
	}
	if errors.Is(err, core.ErrOracleUnavailable) {
		return "service temporarily unavailable"
	}
	return "internal error"
}

// AuthHandlers contains HTTP handlers for the auth flow.
type AuthHandlers struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(authService *service.AuthService, log zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		log:         log.With().Str("component", "http").Logger(),
	}
}

// IssueChallenge handles challenge issuance for the service operator.
func (h *AuthHandlers) IssueChallenge(c *gin.Context) {
	action := core.Action(c.Query("action"))

	challenge, err := h.authService.NewChallenge(c.Request.Context(), action)
	if err != nil {
		if errors.Is(err, core.ErrInvalidAction) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
			return
		}
		h.log.Error().Err(err).Msg("failed to issue challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": challenge.SessionID,
		"k1":         challenge.K1,
		"url":        challenge.URL,
		"lnurl":      challenge.LNURL,
		"expires_at": challenge.ExpiresAt,
	})
}

// Callback handles the wallet's signed auth callback.
func (h *AuthHandlers) Callback(c *gin.Context) {
	req := service.VerifyRequest{
		K1:        c.Query("k1"),
		Signature: c.Query("sig"),
		Key:       c.Query("key"),
		Action:    core.Action(c.Query("action")),
	}

	if err := h.authService.Verify(c.Request.Context(), req); err != nil {
		walletError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusOK)
}

// Session handles session polling by the issuing party.
func (h *AuthHandlers) Session(c *gin.Context) {
	status, err := h.authService.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to load session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}

	resp := gin.H{"authenticated": status.Authenticated}
	if status.Authenticated {
		resp["pub_key"] = status.PubKey
		resp["authenticated_at"] = status.AuthenticatedAt
		resp["token"] = status.Token
	}

	c.JSON(http.StatusOK, resp)
}

// Whoami returns the linking key behind the presented session token.
func (h *AuthHandlers) Whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pub_key": c.GetString(ctxPubKey)})
}

// PublicURLs are the wallet-reachable bases of the LNURL params
// endpoints, used to render freshly issued requests as LNURLs.
type PublicURLs struct {
	Pay      string
	Withdraw string
	Channel  string
}

// PaymentHandlers contains HTTP handlers for the pay, withdraw and
// channel flows.
type PaymentHandlers struct {
	payments *service.PaymentService
	urls     PublicURLs
	log      zerolog.Logger
}

// NewPaymentHandlers creates new payment handlers.
func NewPaymentHandlers(payments *service.PaymentService, urls PublicURLs, log zerolog.Logger) *PaymentHandlers {
	return &PaymentHandlers{
		payments: payments,
		urls:     urls,
		log:      log.With().Str("component", "http").Logger(),
	}
}

func (h *PaymentHandlers) encodeLNURL(c *gin.Context, raw string) (string, bool) {
	encoded, err := lnurl.Encode(raw)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode lnurl")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode request"})
		return "", false
	}
	return encoded, true
}

// CreatePay handles pay config creation for the service operator.
func (h *PaymentHandlers) CreatePay(c *gin.Context) {
	var req struct {
		MinSendableMsat *int64 `json:"min_sendable_msat"`
		MaxSendableMsat *int64 `json:"max_sendable_msat"`
		CommentAllowed  *int   `json:"comment_allowed"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	payment, err := h.payments.CreatePayRequest(c.Request.Context(), service.CreatePayParams{
		MinSendableMsat: req.MinSendableMsat,
		MaxSendableMsat: req.MaxSendableMsat,
		CommentAllowed:  req.CommentAllowed,
	})
	if err != nil {
		if core.IsRejection(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Msg("failed to create pay request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create pay request"})
		return
	}

	encoded, ok := h.encodeLNURL(c, h.urls.Pay+"/"+payment.ID)
	if !ok {
		return
	}

	// The effective bounds are echoed so a caller relying on defaults
	// sees what was actually persisted.
	c.JSON(http.StatusOK, gin.H{
		"id":                payment.ID,
		"min_sendable_msat": payment.MinSendableMsat,
		"max_sendable_msat": payment.MaxSendableMsat,
		"comment_allowed":   payment.CommentAllowed,
		"lnurl":             encoded,
	})
}

// PayParams handles the wallet's LUD-06 first request.
func (h *PaymentHandlers) PayParams(c *gin.Context) {
	params, err := h.payments.PayParams(c.Request.Context(), c.Param("id"))
	if err != nil {
		walletError(c, err)
		return
	}

	c.JSON(http.StatusOK, params)
}

// PayCallback handles the wallet's invoice request.
func (h *PaymentHandlers) PayCallback(c *gin.Context) {
	amountMsat, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		walletError(c, core.ErrAmountOutOfRange)
		return
	}

	invoice, err := h.payments.RequestInvoice(c.Request.Context(),
		c.Param("id"), amountMsat, c.Query("comment"))
	if err != nil {
		walletError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pr": invoice, "routes": []string{}})
}

// PayStatus handles settlement polling by the service operator.
func (h *PaymentHandlers) PayStatus(c *gin.Context) {
	status, err := h.payments.PaymentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to load payment status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payment status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paid":         status.Paid,
		"amount_sats":  status.AmountSats,
		"payment_hash": status.PaymentHash,
		"stale":        status.Stale,
	})
}

// CreateWithdrawal handles withdrawal token issuance for the service
// operator.
func (h *PaymentHandlers) CreateWithdrawal(c *gin.Context) {
	token, err := h.payments.CreateWithdrawal(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create withdrawal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create withdrawal"})
		return
	}

	encoded, ok := h.encodeLNURL(c, h.urls.Withdraw+"?k1="+token.K1)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"k1":          token.K1,
		"amount_sats": token.AmountSats,
		"lnurl":       encoded,
	})
}

// WithdrawParams handles the wallet's LUD-03 first request.
func (h *PaymentHandlers) WithdrawParams(c *gin.Context) {
	params, err := h.payments.WithdrawParams(c.Request.Context(), c.Query("k1"))
	if err != nil {
		walletError(c, err)
		return
	}

	c.JSON(http.StatusOK, params)
}

// WithdrawCallback handles the wallet's redemption request.
func (h *PaymentHandlers) WithdrawCallback(c *gin.Context) {
	err := h.payments.RedeemWithdrawal(c.Request.Context(), c.Query("k1"), c.Query("pr"))
	if err != nil {
		walletError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusOK)
}

// CreateChannel handles channel request issuance for the service
// operator.
func (h *PaymentHandlers) CreateChannel(c *gin.Context) {
	var req struct {
		RemoteID string `json:"remote_id" binding:"required"`
		Private  bool   `json:"private"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	request, err := h.payments.CreateChannelRequest(c.Request.Context(), req.RemoteID, req.Private)
	if err != nil {
		if core.IsRejection(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Msg("failed to create channel request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create channel request"})
		return
	}

	encoded, ok := h.encodeLNURL(c, h.urls.Channel+"?k1="+request.K1)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"k1":    request.K1,
		"lnurl": encoded,
	})
}

// ChannelParams handles the wallet's LUD-02 first request.
func (h *PaymentHandlers) ChannelParams(c *gin.Context) {
	params, err := h.payments.ChannelParams(c.Request.Context(), c.Query("k1"))
	if err != nil {
		walletError(c, err)
		return
	}

	c.JSON(http.StatusOK, params)
}

// ChannelCallback handles the wallet's open-or-cancel request.
func (h *PaymentHandlers) ChannelCallback(c *gin.Context) {
	cancel := c.Query("cancel") == "1" || c.Query("cancel") == "true"

	err := h.payments.ResolveChannel(c.Request.Context(),
		c.Query("k1"), c.Query("remoteid"), cancel)
	if err != nil {
		walletError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusOK)
}

// FundingAddress hands out a fresh on-chain address.
func (h *PaymentHandlers) FundingAddress(c *gin.Context) {
	address, err := h.payments.FundingAddress(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to get funding address")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Node unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"address": address})
}

// HealthHandlers reports liveness of the service and its oracles.
type HealthHandlers struct {
	ln    ports.LightningClient
	chain ports.ChainClient
}

// NewHealthHandlers creates new health handlers.
func NewHealthHandlers(ln ports.LightningClient, chain ports.ChainClient) *HealthHandlers {
	return &HealthHandlers{ln: ln, chain: chain}
}

// Health answers 200 as long as the process is up; oracle state is
// reported in the body so probes can distinguish degraded from dead.
func (h *HealthHandlers) Health(c *gin.Context) {
	resp := gin.H{"status": "OK"}

	if info, err := h.ln.NodeInfo(c.Request.Context()); err != nil {
		resp["lightning"] = "unreachable"
	} else {
		resp["lightning"] = gin.H{
			"pub_key": info.PubKey,
			"alias":   info.Alias,
			"synced":  info.SyncedToChain,
		}
	}

	if height, err := h.chain.BlockHeight(c.Request.Context()); err != nil {
		resp["chain"] = "unreachable"
	} else {
		resp["chain"] = gin.H{"block_height": height}
	}

	c.JSON(http.StatusOK, resp)
}
