package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/layer-3/lnurld/adapters/chain"
	"github.com/layer-3/lnurld/adapters/events"
	"github.com/layer-3/lnurld/adapters/lnd"
	"github.com/layer-3/lnurld/adapters/store"
	"github.com/layer-3/lnurld/adapters/tokenizer"
	"github.com/layer-3/lnurld/config"
	"github.com/layer-3/lnurld/lnurl"
	"github.com/layer-3/lnurld/service"
	"github.com/layer-3/lnurld/transport/http"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("lnurld exited")
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	signKey, err := loadSignKey(cfg.JWTPrivateKeyPEM, log)
	if err != nil {
		return err
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(opts)
	defer func() { _ = redisClient.Close() }()

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer func() { _ = publisher.Close() }()

	// lnd serves REST behind a self-signed certificate; verification
	// against its TLS cert is the macaroon's job to compensate for.
	lnClient := lnd.NewClient(lnd.Config{
		BaseURL:     cfg.LndRestURL,
		MacaroonHex: cfg.LndMacaroonHex,
	}, &nethttp.Client{
		Transport: &nethttp.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Timeout: cfg.OracleTimeoutDuration(),
	})

	chainClient, err := chain.NewBitcoindClient(chain.Config{
		Host: cfg.BitcoindHost,
		User: cfg.BitcoindUser,
		Pass: cfg.BitcoindPass,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to bitcoind: %w", err)
	}
	defer chainClient.Shutdown()

	jwtTokenizer := tokenizer.NewJWTTokenizer(signKey, cfg.TokenTTLDuration())
	redisStore := store.NewRedisStore(redisClient)
	eventPub := events.NewWatermillPublisher(publisher)
	clk := clock.NewDefaultClock()

	authService := service.NewAuthService(redisStore, jwtTokenizer, eventPub,
		clk, log, cfg.PublicURL+"/auth", cfg.SessionTimeoutDuration())

	paymentService := service.NewPaymentService(redisStore, lnClient, eventPub,
		clk, log, service.PaymentConfig{
			PayCallbackURL:      cfg.PublicURL + "/pay",
			WithdrawCallbackURL: cfg.PublicURL + "/withdraw/callback",
			ChannelCallbackURL:  cfg.PublicURL + "/channel/callback",
			MinSendableMsat:     cfg.MinSendableMsat,
			MaxSendableMsat:     cfg.MaxSendableMsat,
			MaxCommentLength:    cfg.MaxCommentLength,
			Description:         cfg.Description,
			WithdrawAmountSats:  cfg.WithdrawAmountSats,
			ChannelAmountSats:   cfg.ChannelAmountSats,
			InvoicePrefix:       lnurl.InvoicePrefix(cfg.Network),
			OracleTimeout:       cfg.OracleTimeoutDuration(),
		})

	reconciler := service.NewReconciler(redisStore, lnClient, eventPub, clk, log,
		ticker.New(cfg.SweepIntervalDuration()),
		ticker.New(cfg.CleanupIntervalDuration()),
		cfg.OracleTimeoutDuration())
	reconciler.Start()
	defer reconciler.Stop()

	router := http.SetupRouter(authService, paymentService, jwtTokenizer,
		lnClient, chainClient, http.PublicURLs{
			Pay:      cfg.PublicURL + "/pay",
			Withdraw: cfg.PublicURL + "/withdraw",
			Channel:  cfg.PublicURL + "/channel",
		}, log)

	server := &nethttp.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("network", cfg.Network).Msg("lnurld listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)

	case <-ctx.Done():
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %w", err)
		}
		return nil
	}
}

// loadSignKey parses the configured PEM key, or generates an ephemeral
// one when none is configured. Ephemeral keys invalidate all issued
// tokens on restart.
func loadSignKey(pemData string, log zerolog.Logger) (*ecdsa.PrivateKey, error) {
	if pemData == "" {
		log.Warn().Msg("no JWT key configured, generating an ephemeral one")
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		return key, nil
	}

	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("JWT_PRIVATE_KEY is not valid PEM")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return key, nil
}
