package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/neonwatch/neonmon/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Interval == 0 {
		cfg.Interval = Duration(15 * time.Second)
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "redis"
	}

	for i := range cfg.Networks {
		if cfg.Networks[i].SignatureLimit == 0 {
			cfg.Networks[i].SignatureLimit = 50
		}
	}
	for i := range cfg.Groups {
		if cfg.Groups[i].SlotDriftThreshold == 0 {
			cfg.Groups[i].SlotDriftThreshold = 10
		}
	}
}

func validate(cfg *AppConfig) error {
	switch cfg.Store.Backend {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}

	chains := make(map[domain.Chain]struct{}, len(cfg.Networks))
	for _, n := range cfg.Networks {
		if n.Name == "" || n.Chain == "" || n.ProgramID == "" || n.URL == "" {
			return fmt.Errorf("network %q: name, chain, program_id and url are required", n.Name)
		}
		chains[n.Chain] = struct{}{}
	}
	for _, p := range cfg.Proxies {
		if p.Name == "" || p.Chain == "" || p.URL == "" {
			return fmt.Errorf("proxy %q: name, chain and url are required", p.Name)
		}
		if _, ok := chains[p.Chain]; !ok {
			return fmt.Errorf("proxy %q: no network configured for chain %s", p.Name, p.Chain)
		}
	}
	for _, w := range cfg.Wallets {
		if w.Address == "" || w.Chain == "" {
			return fmt.Errorf("wallet %q: address and chain are required", w.Name)
		}
		if _, ok := chains[w.Chain]; !ok {
			return fmt.Errorf("wallet %q: no network configured for chain %s", w.Name, w.Chain)
		}
	}
	for _, g := range cfg.Groups {
		if g.Name == "" || len(g.URLs) == 0 {
			return fmt.Errorf("server group %q: name and urls are required", g.Name)
		}
	}
	return nil
}
