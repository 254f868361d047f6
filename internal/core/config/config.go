package config

import (
	"fmt"
	"time"

	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/infra/storage/postgres"
	"github.com/neonwatch/neonmon/internal/infra/storage/redisstore"
)

// Duration accepts Go duration strings ("15s", "1m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return d.Std().String()
}

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Interval Duration            `yaml:"interval"`
	Networks []NetworkConfig     `yaml:"networks"`
	Proxies  []ProxyConfig       `yaml:"proxies"`
	Wallets  []WalletConfig      `yaml:"wallets"`
	Groups   []ServerGroupConfig `yaml:"server_groups"`
	Store    StoreConfig         `yaml:"store"`
	Logging  LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings for the metrics endpoint.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// StoreConfig selects and configures the checkpoint state store backend.
type StoreConfig struct {
	Backend  string            `yaml:"backend"` // redis, postgres, memory
	Redis    redisstore.Config `yaml:"redis"`
	Postgres postgres.Config   `yaml:"postgres"`
}

// NetworkConfig holds settings for one monitored Solana network.
type NetworkConfig struct {
	Name           string       `yaml:"name"`
	Chain          domain.Chain `yaml:"chain"`
	ProgramID      string       `yaml:"program_id"`
	URL            string       `yaml:"url"`
	SignatureLimit int          `yaml:"signature_limit"`
}

// ProxyConfig holds settings for one Neon proxy endpoint.
type ProxyConfig struct {
	Name  string       `yaml:"name"`
	Chain domain.Chain `yaml:"chain"`
	URL   string       `yaml:"url"`
}

// WalletConfig holds settings for one monitored wallet.
type WalletConfig struct {
	Name    string       `yaml:"name"`
	Address string       `yaml:"address"`
	Chain   domain.Chain `yaml:"chain"`
}

// ServerGroupConfig holds settings for one probed server group.
type ServerGroupConfig struct {
	Name               string   `yaml:"name"`
	URLs               []string `yaml:"urls"`
	SlotDriftThreshold uint64   `yaml:"slot_drift_threshold"`
}
