package core

import "time"

// ChannelRequest is a single-use LNURL-channel request for an inbound
// channel open towards a known remote node.
type ChannelRequest struct {
	// K1 is the single-use random challenge identifying the request.
	K1 string

	// RemoteID is the remote node's compressed public key, hex encoded.
	RemoteID string

	// Private marks whether the channel should be announced.
	Private bool

	// Cancelled and Completed are mutually exclusive terminal flags. At
	// most one ever becomes true; after that the record never mutates
	// again.
	Cancelled bool
	Completed bool

	CreatedAt time.Time
}

// Resolved reports whether the request has reached a terminal state.
func (r *ChannelRequest) Resolved() bool {
	return r.Cancelled || r.Completed
}
