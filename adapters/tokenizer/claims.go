package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with auth-flow specific ones.
// The subject is the wallet's linking key, the JWT ID the session
// identifier it was minted for.
type SessionClaims struct {
	jwt.RegisteredClaims
	Action string `json:"action,omitempty"`
}
