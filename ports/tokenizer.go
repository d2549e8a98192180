package ports

import "github.com/layer-3/lnurld/core"

// Tokenizer converts authenticated sessions into bearer tokens consumed
// by downstream services (the VSS storage backend verifies these against
// the server's public key).
type Tokenizer interface {
	// SessionToToken issues a signed token for an authenticated session.
	// The token's subject is the session's authenticated pubkey.
	SessionToToken(session *core.AuthSession) (string, error)

	// TokenToPubKey verifies a token and returns the pubkey it was
	// issued for.
	TokenToPubKey(token string) (string, error)
}
