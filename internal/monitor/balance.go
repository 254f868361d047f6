package monitor

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/metrics"
)

// BalanceClient is the slice of the RPC client the balance monitor needs.
type BalanceClient interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
}

// BalanceMonitor fetches the balance of every configured wallet through its
// chain's RPC client. A failed fetch keeps the previous gauge value.
type BalanceMonitor struct {
	wallets []domain.Wallet
	clients map[domain.Chain]BalanceClient
	reg     *metrics.Registry
	log     *slog.Logger
}

// NewBalanceMonitor creates the monitor over all configured wallets.
func NewBalanceMonitor(
	wallets []domain.Wallet,
	clients map[domain.Chain]BalanceClient,
	reg *metrics.Registry,
) *BalanceMonitor {
	return &BalanceMonitor{
		wallets: wallets,
		clients: clients,
		reg:     reg,
		log:     slog.With("probe", "balance"),
	}
}

// Name identifies the probe in round status and logs.
func (m *BalanceMonitor) Name() string {
	return "balance"
}

// Run fetches all wallet balances concurrently.
func (m *BalanceMonitor) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, w := range m.wallets {
		g.Go(func() error {
			m.fetch(ctx, w)
			return nil
		})
	}
	return g.Wait()
}

func (m *BalanceMonitor) fetch(ctx context.Context, w domain.Wallet) {
	client, ok := m.clients[w.Chain]
	if !ok {
		m.log.Warn("no RPC client for wallet chain", "wallet", w.Name, "chain", w.Chain)
		return
	}

	lamports, err := client.GetBalance(ctx, w.Address)
	if err != nil {
		m.log.Warn("balance fetch failed, keeping previous value",
			"wallet", w.Name, "address", w.Address, "error", err)
		return
	}

	m.reg.WalletBalance.WithLabelValues(w.Address, w.Name).Set(domain.BalanceSOL(lamports))
}
