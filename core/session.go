package core

import "time"

// Action is the optional LUD-04 action tag a wallet attaches to an
// authentication flow. It is informational: the tag is not part of the
// signed challenge, so a mismatch between issuance and callback does not
// invalidate the signature.
type Action string

const (
	ActionRegister Action = "register"
	ActionLogin    Action = "login"
	ActionLink     Action = "link"
	ActionAuth     Action = "auth"
)

// ValidAction reports whether a is one of the four recognized action tags.
func ValidAction(a Action) bool {
	switch a {
	case ActionRegister, ActionLogin, ActionLink, ActionAuth:
		return true
	default:
		return false
	}
}

// AuthSession tracks a single LNURL-auth challenge from issuance to
// authentication. The k1 challenge is what the wallet signs and must stay
// unguessable; the session ID only grants visibility into whether
// authentication happened, so it is safe to hand to the original requester
// for polling.
type AuthSession struct {
	// ID is the opaque identifier used by the issuing party to poll for
	// completion.
	ID string

	// K1 is the 32-byte random challenge, hex encoded, unique per
	// outstanding session.
	K1 string

	// Action is the tag requested at issuance, empty if none was given.
	Action Action

	// PubKey holds the authenticated wallet's compressed public key in
	// hex. Empty until verification succeeds.
	PubKey string

	// Authenticated flips false to true exactly once on a successful
	// signature verification and is never reversed.
	Authenticated bool

	// AuthenticatedAt is the time of the successful verification, zero
	// while unauthenticated.
	AuthenticatedAt time.Time

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its deadline at the given
// time. Expired sessions are treated as nonexistent for authentication
// purposes even before the cleanup pass physically deletes them.
func (s *AuthSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
