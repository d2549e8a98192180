package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/layer-3/lnurld/ports"
	"github.com/layer-3/lnurld/service"
)

// SetupRouter sets up the Gin router.
func SetupRouter(authService *service.AuthService, payments *service.PaymentService,
	tokenizer ports.Tokenizer, ln ports.LightningClient, chain ports.ChainClient,
	urls PublicURLs, log zerolog.Logger) *gin.Engine {

	router := gin.New()
	router.Use(gin.Recovery())

	authHandlers := NewAuthHandlers(authService, log)
	paymentHandlers := NewPaymentHandlers(payments, urls, log)
	healthHandlers := NewHealthHandlers(ln, chain)

	// Operator-facing issuance routes.
	issue := router.Group("/lnurl")
	{
		issue.GET("/auth", authHandlers.IssueChallenge)
		issue.POST("/pay", paymentHandlers.CreatePay)
		issue.POST("/withdraw", paymentHandlers.CreateWithdrawal)
		issue.POST("/channel", paymentHandlers.CreateChannel)
	}

	// Wallet-facing LNURL endpoints. These answer wire JSON with HTTP
	// 200 even on rejection.
	router.GET("/auth", authHandlers.Callback)
	router.GET("/pay/:id", paymentHandlers.PayParams)
	router.GET("/pay/:id/callback", paymentHandlers.PayCallback)
	router.GET("/withdraw", paymentHandlers.WithdrawParams)
	router.GET("/withdraw/callback", paymentHandlers.WithdrawCallback)
	router.GET("/channel", paymentHandlers.ChannelParams)
	router.GET("/channel/callback", paymentHandlers.ChannelCallback)

	// Operator-facing status routes.
	router.GET("/auth/session/:id", authHandlers.Session)
	router.GET("/pay/:id/status", paymentHandlers.PayStatus)
	router.GET("/address", paymentHandlers.FundingAddress)
	router.GET("/health", healthHandlers.Health)

	// Protected API routes.
	api := router.Group("/api")
	api.Use(AuthMiddleware(tokenizer))
	{
		api.GET("/whoami", authHandlers.Whoami)
	}

	return router
}
