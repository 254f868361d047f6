// Package control wires configuration, storage, RPC clients, probes and the
// exposition server into a runnable application.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neonwatch/neonmon/internal/core/config"
	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/infra/neon"
	"github.com/neonwatch/neonmon/internal/infra/solana"
	"github.com/neonwatch/neonmon/internal/infra/storage"
	"github.com/neonwatch/neonmon/internal/infra/storage/memory"
	"github.com/neonwatch/neonmon/internal/infra/storage/postgres"
	"github.com/neonwatch/neonmon/internal/infra/storage/redisstore"
	"github.com/neonwatch/neonmon/internal/metrics"
	"github.com/neonwatch/neonmon/internal/monitor"
)

const rpcTimeout = 10 * time.Second

// MigrationsDir is where goose migrations live, relative to the working
// directory.
var MigrationsDir = "migrations"

// App is the assembled monitoring application.
type App struct {
	cfg       *config.AppConfig
	scheduler *monitor.Scheduler
	server    *metrics.Server
	repo      storage.SignatureRepository
	log       *slog.Logger
}

// New creates an App with all dependencies initialized.
func New(cfg *config.AppConfig) (*App, error) {
	registry := metrics.NewRegistry()

	// 1. State store
	repo, err := newRepository(cfg.Store)
	if err != nil {
		return nil, err
	}

	// 2. RPC clients, one per configured network endpoint
	networkClients := make(map[string]*solana.Client, len(cfg.Networks))
	chainClients := make(map[domain.Chain]*solana.Client)
	networks := make([]domain.Network, 0, len(cfg.Networks))
	for _, nc := range cfg.Networks {
		n := domain.Network{
			Name:           nc.Name,
			Chain:          nc.Chain,
			ProgramID:      nc.ProgramID,
			URL:            nc.URL,
			SignatureLimit: nc.SignatureLimit,
		}
		networks = append(networks, n)

		client := solana.NewClient(n.URL, rpcTimeout)
		networkClients[n.Name] = client
		if _, ok := chainClients[n.Chain]; !ok {
			chainClients[n.Chain] = client
		}
	}

	var probes []monitor.Probe

	// 3. Transaction reconcilers
	for _, n := range networks {
		probes = append(probes, monitor.NewReconciler(n, networkClients[n.Name], repo, registry))
	}

	// 4. Block lag pairings: each proxy against the first network sharing
	// its chain
	var pairings []monitor.Pairing
	for _, pc := range cfg.Proxies {
		proxy := domain.Proxy{Name: pc.Name, Chain: pc.Chain, URL: pc.URL}
		rpcClient, ok := chainClients[proxy.Chain]
		if !ok {
			return nil, fmt.Errorf("proxy %q: no network configured for chain %s", proxy.Name, proxy.Chain)
		}
		var backing domain.Network
		for _, n := range networks {
			if n.Chain == proxy.Chain {
				backing = n
				break
			}
		}
		pairings = append(pairings, monitor.Pairing{
			Proxy:       proxy,
			Network:     backing,
			ProxyClient: neon.NewClient(proxy.URL, rpcTimeout),
			RPCClient:   rpcClient,
		})
	}
	if len(pairings) > 0 {
		probes = append(probes, monitor.NewBlockLagMonitor(pairings, registry))
	}

	// 5. Server group probers
	for _, gc := range cfg.Groups {
		group := domain.ServerGroup{
			Name:               gc.Name,
			URLs:               gc.URLs,
			SlotDriftThreshold: gc.SlotDriftThreshold,
		}
		clients := make(map[string]monitor.HealthClient, len(group.URLs))
		for _, url := range group.URLs {
			clients[url] = solana.NewClient(url, rpcTimeout)
		}
		probes = append(probes, monitor.NewProber(group, clients, registry))
	}

	// 6. Wallet balances
	if len(cfg.Wallets) > 0 {
		wallets := make([]domain.Wallet, 0, len(cfg.Wallets))
		for _, wc := range cfg.Wallets {
			wallets = append(wallets, domain.Wallet{Name: wc.Name, Address: wc.Address, Chain: wc.Chain})
		}
		balanceClients := make(map[domain.Chain]monitor.BalanceClient, len(chainClients))
		for chain, client := range chainClients {
			balanceClients[chain] = client
		}
		probes = append(probes, monitor.NewBalanceMonitor(wallets, balanceClients, registry))
	}

	scheduler := monitor.NewScheduler(cfg.Interval.Std(), probes, registry)
	server := metrics.NewServer(registry, scheduler.Status, cfg.Server.Port)

	return &App{
		cfg:       cfg,
		scheduler: scheduler,
		server:    server,
		repo:      repo,
		log:       slog.Default(),
	}, nil
}

func newRepository(cfg config.StoreConfig) (storage.SignatureRepository, error) {
	switch cfg.Backend {
	case "postgres":
		db, err := postgres.NewDB(context.Background(), cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(MigrationsDir); err != nil {
			return nil, err
		}
		slog.Info("Using PostgreSQL state store")
		return postgres.NewSignatureRepo(db), nil
	case "memory":
		slog.Warn("Using in-memory state store, no crash recovery")
		return memory.New(), nil
	default:
		repo, err := redisstore.New(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		slog.Info("Using Redis state store")
		return repo, nil
	}
}

// Start starts the exposition server and the scheduler loop.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("Metrics server failed", "error", err)
		}
	}()

	go func() {
		if err := a.scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("Scheduler stopped", "error", err)
		}
	}()

	a.log.Info("Monitor started",
		"networks", len(a.cfg.Networks),
		"proxies", len(a.cfg.Proxies),
		"wallets", len(a.cfg.Wallets),
		"server_groups", len(a.cfg.Groups),
		"interval", a.cfg.Interval.Std())
	return nil
}

// Stop shuts down the exposition server and closes the store.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping monitor...")

	if err := a.repo.Close(); err != nil {
		a.log.Warn("Failed to close state store", "error", err)
	}
	return a.server.Stop(ctx)
}
