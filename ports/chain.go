package ports

import "context"

// ChainClient is the chain oracle. It only feeds liveness reporting; no
// protocol decision depends on it.
type ChainClient interface {
	// BlockHeight returns the current best block height.
	BlockHeight(ctx context.Context) (int64, error)
}
