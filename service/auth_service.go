package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"

	"github.com/layer-3/lnurld/core"
	"github.com/layer-3/lnurld/lnurl"
	"github.com/layer-3/lnurld/ports"
)

// DefaultSessionTimeout bounds how long a wallet has to sign a challenge.
const DefaultSessionTimeout = 10 * time.Minute

// AuthService drives the LNURL-auth state machine: challenge issuance,
// signature verification and session polling. All session state lives in
// the store; the service itself is stateless across calls.
type AuthService struct {
	store     ports.Store
	tokenizer ports.Tokenizer
	events    ports.EventPublisher
	clock     clock.Clock
	log       zerolog.Logger

	callbackURL    string
	sessionTimeout time.Duration
}

// NewAuthService creates a new authentication service. callbackURL is the
// public URL wallets call back with their signature, without query
// parameters.
func NewAuthService(store ports.Store, tokenizer ports.Tokenizer,
	events ports.EventPublisher, clk clock.Clock, log zerolog.Logger,
	callbackURL string, sessionTimeout time.Duration) *AuthService {

	if sessionTimeout <= 0 {
		sessionTimeout = DefaultSessionTimeout
	}

	return &AuthService{
		store:          store,
		tokenizer:      tokenizer,
		events:         events,
		clock:          clk,
		log:            log.With().Str("component", "auth").Logger(),
		callbackURL:    callbackURL,
		sessionTimeout: sessionTimeout,
	}
}

// Challenge is a freshly issued LNURL-auth challenge.
type Challenge struct {
	// SessionID is handed to the issuing party for polling. It grants no
	// authentication power, only visibility into completion.
	SessionID string

	// K1 is the hex challenge the wallet signs.
	K1 string

	// URL is the callback URL embedding the challenge.
	URL string

	// LNURL is the bech32 form of URL, the thing rendered as a QR code.
	LNURL string

	ExpiresAt time.Time
}

// NewChallenge issues a fresh challenge. The action tag is optional;
// unrecognized tags are rejected.
func (s *AuthService) NewChallenge(ctx context.Context, action core.Action) (*Challenge, error) {
	if action != "" && !core.ValidAction(action) {
		return nil, core.ErrInvalidAction
	}

	k1, err := lnurl.RandomK1()
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}

	now := s.clock.Now()
	session := &core.AuthSession{
		ID:        uuid.New().String(),
		K1:        k1,
		Action:    action,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTimeout),
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	callback := fmt.Sprintf("%s?tag=login&k1=%s", s.callbackURL, k1)
	if action != "" {
		callback += "&action=" + url.QueryEscape(string(action))
	}

	encoded, err := lnurl.Encode(callback)
	if err != nil {
		return nil, fmt.Errorf("failed to encode callback: %w", err)
	}

	return &Challenge{
		SessionID: session.ID,
		K1:        k1,
		URL:       callback,
		LNURL:     encoded,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// VerifyRequest is the wallet's signed callback.
type VerifyRequest struct {
	K1        string
	Signature string
	Key       string
	Action    core.Action
}

// Verify validates a wallet's signature over a previously issued
// challenge and, on success, authenticates the owning session. The
// transition is idempotent for the winning key; a different key can never
// take over an authenticated session.
//
// Unknown and expired challenges share one rejection so callers cannot
// probe challenge lifetimes. The action tag is checked syntactically but
// a mismatch with the issued tag does not block authentication: the tag
// is not part of the signed material.
func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) error {
	digest, err := lnurl.DecodeK1(req.K1)
	if err != nil {
		return core.ErrInvalidK1
	}

	sig, err := hex.DecodeString(req.Signature)
	if err != nil || len(sig) == 0 {
		return core.ErrInvalidSignature
	}

	key, err := lnurl.ParsePubKey(req.Key)
	if err != nil {
		return core.ErrInvalidPubKey
	}

	if req.Action != "" && !core.ValidAction(req.Action) {
		return core.ErrInvalidAction
	}

	session, err := s.store.SessionByK1(ctx, req.K1)
	if err != nil {
		return err
	}

	if session.Expired(s.clock.Now()) {
		// Same rejection as an unknown challenge.
		return core.ErrChallengeNotFound
	}

	if !lnurl.VerifySignature(digest, sig, key) {
		return core.ErrInvalidSignature
	}

	if err := s.store.AuthenticateSession(ctx, req.K1, req.Key, s.clock.Now()); err != nil {
		return err
	}

	s.log.Info().
		Str("session_id", session.ID).
		Str("pubkey", req.Key).
		Msg("session authenticated")

	if err := s.events.PublishAuthSucceeded(ctx, session.ID, req.Key); err != nil {
		// The store transition already happened; losing the event is
		// not worth failing the wallet's callback.
		s.log.Warn().Err(err).Msg("failed to publish auth event")
	}

	return nil
}

// SessionStatus is the answer to a poll. Token is only set once the
// session is authenticated.
type SessionStatus struct {
	Authenticated   bool
	PubKey          string
	AuthenticatedAt time.Time
	Token           string
}

// Session reports whether the session has been authenticated. Safe to
// call repeatedly while waiting for the wallet to complete out of band.
// Once authenticated, the response carries a signed token for downstream
// services.
func (s *AuthService) Session(ctx context.Context, sessionID string) (*SessionStatus, error) {
	session, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Expired(s.clock.Now()) && !session.Authenticated {
		return nil, core.ErrSessionNotFound
	}

	status := &SessionStatus{
		Authenticated:   session.Authenticated,
		PubKey:          session.PubKey,
		AuthenticatedAt: session.AuthenticatedAt,
	}

	if session.Authenticated {
		token, err := s.tokenizer.SessionToToken(session)
		if err != nil {
			return nil, fmt.Errorf("failed to issue session token: %w", err)
		}
		status.Token = token
	}

	return status, nil
}
