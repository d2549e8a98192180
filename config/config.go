// Package config loads app config from env and an optional .env file
// using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// ListenAddr is the address the HTTP server listens on.
	ListenAddr string `mapstructure:"LISTEN_ADDR"`

	// PublicURL is the wallet-reachable base of this service, without a
	// trailing slash. Every callback URL is derived from it.
	PublicURL string `mapstructure:"PUBLIC_URL"`

	// Network selects the Bitcoin network: mainnet, testnet, signet or
	// regtest. It decides which BOLT-11 prefix invoices must carry.
	Network string `mapstructure:"NETWORK"`

	// RedisURL is the Redis connection string for the persistent store
	// and the event stream.
	RedisURL string `mapstructure:"REDIS_URL"`

	// LndRestURL and LndMacaroonHex configure the Lightning node
	// connection.
	LndRestURL     string `mapstructure:"LND_REST_URL"`
	LndMacaroonHex string `mapstructure:"LND_MACAROON_HEX"`

	// BitcoindHost, BitcoindUser and BitcoindPass configure the chain
	// oracle. The host is host:port without a scheme.
	BitcoindHost string `mapstructure:"BITCOIND_HOST"`
	BitcoindUser string `mapstructure:"BITCOIND_USER"`
	BitcoindPass string `mapstructure:"BITCOIND_PASS"`

	// JWTPrivateKeyPEM is the PEM-encoded ECDSA key session tokens are
	// signed with. Empty generates an ephemeral key at startup.
	JWTPrivateKeyPEM string `mapstructure:"JWT_PRIVATE_KEY"`

	// SessionTimeout bounds how long a challenge stays verifiable.
	SessionTimeout string `mapstructure:"SESSION_TIMEOUT"`

	// TokenTTL is the lifetime of issued session tokens.
	TokenTTL string `mapstructure:"TOKEN_TTL"`

	// SweepInterval and CleanupInterval drive the background
	// reconciliation loops.
	SweepInterval   string `mapstructure:"SWEEP_INTERVAL"`
	CleanupInterval string `mapstructure:"CLEANUP_INTERVAL"`

	// OracleTimeout bounds every call to the node.
	OracleTimeout string `mapstructure:"ORACLE_TIMEOUT"`

	// MinSendableMsat and MaxSendableMsat are the absolute pay bounds.
	MinSendableMsat int64 `mapstructure:"MIN_SENDABLE_MSAT"`
	MaxSendableMsat int64 `mapstructure:"MAX_SENDABLE_MSAT"`

	// MaxCommentLength caps LUD-12 comments.
	MaxCommentLength int `mapstructure:"MAX_COMMENT_LENGTH"`

	// Description is the LUD-06 metadata text.
	Description string `mapstructure:"DESCRIPTION"`

	// WithdrawAmountSats is the fixed withdrawal entitlement.
	WithdrawAmountSats int64 `mapstructure:"WITHDRAW_AMOUNT_SATS"`

	// ChannelAmountSats is the local funding amount for channel opens.
	ChannelAmountSats int64 `mapstructure:"CHANNEL_AMOUNT_SATS"`
}

// Load reads .env (if present), then builds and validates Config from
// the environment via Viper. Missing .env is ignored; env vars override
// .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8090")
	v.SetDefault("PUBLIC_URL", "http://localhost:8090")
	v.SetDefault("NETWORK", "mainnet")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("LND_REST_URL", "https://localhost:8080")
	v.SetDefault("LND_MACAROON_HEX", "")
	v.SetDefault("BITCOIND_HOST", "localhost:8332")
	v.SetDefault("BITCOIND_USER", "")
	v.SetDefault("BITCOIND_PASS", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("SESSION_TIMEOUT", "10m")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("SWEEP_INTERVAL", "5s")
	v.SetDefault("CLEANUP_INTERVAL", "5m")
	v.SetDefault("ORACLE_TIMEOUT", "10s")
	v.SetDefault("MIN_SENDABLE_MSAT", 1000)
	v.SetDefault("MAX_SENDABLE_MSAT", 100_000_000)
	v.SetDefault("MAX_COMMENT_LENGTH", 255)
	v.SetDefault("DESCRIPTION", "lnurld")
	v.SetDefault("WITHDRAW_AMOUNT_SATS", 0)
	v.SetDefault("CHANNEL_AMOUNT_SATS", 20_000)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("config: LISTEN_ADDR must be set")
	}
	if cfg.PublicURL == "" || strings.HasSuffix(cfg.PublicURL, "/") {
		return nil, errors.New("config: PUBLIC_URL must be set without a trailing slash")
	}
	switch cfg.Network {
	case "mainnet", "testnet", "signet", "regtest":
	default:
		return nil, errors.New("config: NETWORK must be mainnet, testnet, signet or regtest")
	}
	if cfg.MinSendableMsat <= 0 || cfg.MaxSendableMsat < cfg.MinSendableMsat {
		return nil, errors.New("config: sendable bounds are invalid")
	}
	if cfg.MaxCommentLength < 0 {
		return nil, errors.New("config: MAX_COMMENT_LENGTH must not be negative")
	}

	return &cfg, nil
}

func duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SessionTimeoutDuration parses SessionTimeout, 10m if unset or invalid.
func (c *Config) SessionTimeoutDuration() time.Duration {
	return duration(c.SessionTimeout, 10*time.Minute)
}

// TokenTTLDuration parses TokenTTL, 24h if unset or invalid.
func (c *Config) TokenTTLDuration() time.Duration {
	return duration(c.TokenTTL, 24*time.Hour)
}

// SweepIntervalDuration parses SweepInterval, 5s if unset or invalid.
func (c *Config) SweepIntervalDuration() time.Duration {
	return duration(c.SweepInterval, 5*time.Second)
}

// CleanupIntervalDuration parses CleanupInterval, 5m if unset or
// invalid.
func (c *Config) CleanupIntervalDuration() time.Duration {
	return duration(c.CleanupInterval, 5*time.Minute)
}

// OracleTimeoutDuration parses OracleTimeout, 10s if unset or invalid.
func (c *Config) OracleTimeoutDuration() time.Duration {
	return duration(c.OracleTimeout, 10*time.Second)
}
