package monitor

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/metrics"
)

// BlockNumberer reports a proxy's highest processed block.
type BlockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Slotter reports an RPC node's current slot.
type Slotter interface {
	GetSlot(ctx context.Context) (uint64, error)
}

// Pairing joins a proxy with the backing RPC network on the same chain.
type Pairing struct {
	Proxy       domain.Proxy
	Network     domain.Network
	ProxyClient BlockNumberer
	RPCClient   Slotter
}

// BlockLagMonitor samples proxy-vs-RPC height lag for each pairing. A failed
// fetch leaves the previous gauge value untouched: stale-but-present beats
// absent.
type BlockLagMonitor struct {
	pairings []Pairing
	reg      *metrics.Registry
	log      *slog.Logger
}

// NewBlockLagMonitor creates the monitor over the given pairings.
func NewBlockLagMonitor(pairings []Pairing, reg *metrics.Registry) *BlockLagMonitor {
	return &BlockLagMonitor{
		pairings: pairings,
		reg:      reg,
		log:      slog.With("probe", "blocklag"),
	}
}

// Name identifies the probe in round status and logs.
func (m *BlockLagMonitor) Name() string {
	return "blocklag"
}

// Run samples every pairing concurrently.
func (m *BlockLagMonitor) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, p := range m.pairings {
		g.Go(func() error {
			m.sample(ctx, p)
			return nil
		})
	}
	return g.Wait()
}

func (m *BlockLagMonitor) sample(ctx context.Context, p Pairing) {
	var proxyHeight, rpcHeight uint64

	var g errgroup.Group
	g.Go(func() error {
		var err error
		proxyHeight, err = p.ProxyClient.BlockNumber(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		rpcHeight, err = p.RPCClient.GetSlot(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		m.log.Warn("height fetch failed, keeping previous sample",
			"proxy", p.Proxy.Name, "rpc", p.Network.Name, "error", err)
		return
	}

	lag := float64(proxyHeight) - float64(rpcHeight)
	m.reg.BlockLag.WithLabelValues(
		p.Proxy.Name, p.Network.Name, string(p.Proxy.Chain),
	).Set(lag)
}
