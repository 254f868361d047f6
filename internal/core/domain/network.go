package domain

// Chain identifies a deployment environment (devnet, testnet, mainnet).
type Chain string

const (
	ChainDevnet  Chain = "devnet"
	ChainTestnet Chain = "testnet"
	ChainMainnet Chain = "mainnet"
)

// Network is a Solana RPC endpoint paired with the Neon EVM program deployed on it.
// Loaded once from configuration, immutable during a run.
type Network struct {
	Name      string
	Chain     Chain
	ProgramID string
	URL       string

	// SignatureLimit bounds the initial backfill page when no checkpoint exists.
	SignatureLimit int
}

// Proxy is a Neon proxy service endpoint (the EVM-facing RPC surface).
type Proxy struct {
	Name  string
	Chain Chain
	URL   string
}

// ServerGroup is a named set of Solana RPC endpoints probed for health.
type ServerGroup struct {
	Name string
	URLs []string

	// SlotDriftThreshold is the acceptable distance from the group's
	// maximum observed slot before a node is reported as lagging.
	SlotDriftThreshold uint64
}
