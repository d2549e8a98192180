package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/lnurld/core"
	"github.com/layer-3/lnurld/ports"
)

const AudienceSession = "lnurl:session"

// DefaultTokenTTL is the lifetime of an issued session token.
const DefaultTokenTTL = 24 * time.Hour

// ErrInvalidToken is returned for tokens that fail signature or claim
// validation.
var ErrInvalidToken = errors.New("invalid token")

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs.
type JWTTokenizer struct {
	signKey  *ecdsa.PrivateKey
	tokenTTL time.Duration
}

// NewJWTTokenizer creates a new JWT tokenizer. A non-positive tokenTTL
// falls back to DefaultTokenTTL.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, tokenTTL time.Duration) ports.Tokenizer {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &JWTTokenizer{signKey: signKey, tokenTTL: tokenTTL}
}

// SessionToToken mints a signed token for an authenticated session. The
// token is anchored to the moment the signature was verified, not to the
// moment of minting, so repeated polls of the same session yield the
// same token.
func (j *JWTTokenizer) SessionToToken(session *core.AuthSession) (string, error) {
	if !session.Authenticated || session.PubKey == "" {
		return "", fmt.Errorf("session %s is not authenticated", session.ID)
	}

	issuedAt := session.AuthenticatedAt
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.PubKey,
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(j.tokenTTL)),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Action: string(session.Action),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// TokenToPubKey validates a session token and returns the linking key it
// was issued for.
func (j *JWTTokenizer) TokenToPubKey(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceSession))

	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
