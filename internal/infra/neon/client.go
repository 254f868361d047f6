// Package neon talks to the Neon proxy's EVM-facing JSON-RPC surface.
package neon

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/neonwatch/neonmon/internal/infra/solana"
)

// Client queries a Neon proxy endpoint.
type Client struct {
	rpc *solana.Client
}

// NewClient creates a client for the given proxy endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{rpc: solana.NewClient(endpoint, timeout)}
}

// Endpoint returns the proxy URL this client talks to.
func (c *Client) Endpoint() string {
	return c.rpc.Endpoint()
}

// BlockNumber returns the proxy's highest processed block. Neon blocks map
// one-to-one onto Solana slots, so the value is directly comparable to a
// getSlot result from the backing RPC.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.rpc.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	var blockHex string
	if err := json.Unmarshal(result, &blockHex); err != nil {
		return 0, fmt.Errorf("invalid block number response: %w", err)
	}
	return parseHexUint(blockHex)
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex number")
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex number %q: %w", s, err)
	}
	return n, nil
}
