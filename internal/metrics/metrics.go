package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric series the monitors write. It is passed by
// reference to each probe; there is no ambient global metric state.
type Registry struct {
	reg *prometheus.Registry

	// TxTotal tracks counted transactions per network
	TxTotal *prometheus.CounterVec

	// TxFail tracks counted failed transactions per network
	TxFail *prometheus.CounterVec

	// TxSuccessRatio is 1 - fail/total, set only once total > 0
	TxSuccessRatio *prometheus.GaugeVec

	// BlockLag is proxy height minus backing RPC height per pairing
	BlockLag *prometheus.GaugeVec

	// NodeHealth is 0 unreachable, 1 healthy, >1 slots behind group max
	NodeHealth *prometheus.GaugeVec

	// WalletBalance is the latest observed balance in SOL
	WalletBalance *prometheus.GaugeVec

	// LastUpdate is the unix timestamp of the last fully successful round
	LastUpdate prometheus.Gauge
}

// NewRegistry creates a registry with all series registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		TxTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neon_tx_total",
				Help: "Total number of counted Neon program transactions",
			},
			[]string{"chain", "program_id", "solana_url"},
		),
		TxFail: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neon_tx_fail_total",
				Help: "Total number of counted failed Neon program transactions",
			},
			[]string{"chain", "program_id", "solana_url"},
		),
		TxSuccessRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "neon_tx_success_ratio",
				Help: "Share of successful transactions, 1 - fail/total",
			},
			[]string{"chain", "program_id", "solana_url"},
		),
		BlockLag: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "neon_proxy_block_lag",
				Help: "Proxy block height minus backing RPC slot height",
			},
			[]string{"neon_name", "solana_name", "chain"},
		),
		NodeHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "solana_node_health",
				Help: "Solana node health: 0 unreachable, 1 healthy, >1 slots behind",
			},
			[]string{"address", "server_group"},
		),
		WalletBalance: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "neon_wallet_balance",
				Help: "Latest observed wallet balance in SOL",
			},
			[]string{"address", "name"},
		),
		LastUpdate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "neon_last_update_seconds",
				Help: "Unix timestamp of the last fully successful round",
			},
		),
	}
}

// Gatherer exposes the underlying registry for the exposition handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
