package domain

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Wallet represents a monitored wallet address.
type Wallet struct {
	Name    string
	Address string
	Chain   Chain
}

// BalanceSOL converts a lamport amount to SOL.
func BalanceSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}
