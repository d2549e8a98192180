// Package chain reads on-chain state from a bitcoind node.
package chain

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/rpcclient"

	"github.com/layer-3/lnurld/ports"
)

// Config carries the bitcoind RPC connection parameters.
type Config struct {
	// Host is the RPC endpoint, host:port.
	Host string
	User string
	Pass string
}

// BitcoindClient implements ports.ChainClient against bitcoind's JSON-RPC
// interface.
type BitcoindClient struct {
	rpc *rpcclient.Client
}

var _ ports.ChainClient = (*BitcoindClient)(nil)

// NewBitcoindClient dials bitcoind. bitcoind only speaks HTTP POST
// without TLS on its RPC port.
func NewBitcoindClient(cfg Config) (*BitcoindClient, error) {
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create bitcoind client: %w", err)
	}

	return &BitcoindClient{rpc: rpc}, nil
}

// BlockHeight returns the current best block height.
func (c *BitcoindClient) BlockHeight(ctx context.Context) (int64, error) {
	type result struct {
		height int64
		err    error
	}

	// rpcclient has no context-aware calls; bound the wait here so a
	// hung node cannot stall the caller.
	done := make(chan result, 1)
	go func() {
		height, err := c.rpc.GetBlockCount()
		done <- result{height: height, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return 0, fmt.Errorf("failed to get block count: %w", res.err)
		}
		return res.height, nil

	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Shutdown tears down the RPC connection.
func (c *BitcoindClient) Shutdown() {
	c.rpc.Shutdown()
}
