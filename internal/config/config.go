package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the relayer daemon.
type Config struct {
	// API settings
	API APIConfig `yaml:"api"`

	// Quote broker settings
	Quote QuoteConfig `yaml:"quote"`

	// Swap lifecycle settings
	Swap SwapConfig `yaml:"swap"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`

	// Networks holds per-chain overrides; merged over DefaultNetworks.
	Networks map[string]*Network `yaml:"networks,omitempty"`
}

// APIConfig holds HTTP/websocket listener settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// QuoteConfig holds quote-broker timing settings.
type QuoteConfig struct {
	// RequestTimeout bounds how long a quote request waits for a resolver.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SwapConfig holds swap lifecycle settings.
type SwapConfig struct {
	// WithdrawalWindow is the delay from escrow deployment until
	// settlement becomes valid.
	WithdrawalWindow time.Duration `yaml:"withdrawal_window"`

	// CancellationWindow is the delay from escrow deployment until the
	// depositor can reclaim funds. Must exceed WithdrawalWindow.
	CancellationWindow time.Duration `yaml:"cancellation_window"`

	// PermitValidity bounds how long a gasless approval stays signable.
	PermitValidity time.Duration `yaml:"permit_validity"`

	// SafetyDepositWei is the collateral posted with each escrow.
	SafetyDepositWei string `yaml:"safety_deposit_wei"`

	// CallTimeout bounds each chain adapter call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// ExpiredSecretAge is the age past which a revealed secret shows up
	// in the recovery/audit view.
	ExpiredSecretAge time.Duration `yaml:"expired_secret_age"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Quote: QuoteConfig{
			RequestTimeout: 30 * time.Second,
		},
		Swap: SwapConfig{
			WithdrawalWindow:   5 * time.Minute,
			CancellationWindow: 30 * time.Minute,
			PermitValidity:     time.Hour,
			SafetyDepositWei:   "1000000000000000", // 0.001 native
			CallTimeout:        45 * time.Second,
			ExpiredSecretAge:   5 * time.Minute,
		},
		Storage: StorageConfig{
			DataDir: "~/.relayer",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigPath returns the config file path for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.yaml")
}

// Load reads the config file in dataDir, merged over defaults.
// A missing file yields the defaults.
func Load(dataDir string) (*Config, error) {
	cfg := Default()
	cfg.Storage.DataDir = dataDir

	path := ConfigPath(expandPath(dataDir))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Swap.CancellationWindow <= cfg.Swap.WithdrawalWindow {
		return nil, fmt.Errorf("invalid config: cancellation_window must exceed withdrawal_window")
	}

	return cfg, nil
}

// Save writes the config file into its data directory.
func (c *Config) Save() error {
	dir := expandPath(c.Storage.DataDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(dir), data, 0600)
}

// ResolveNetworks merges configured overrides over the built-in registry.
func (c *Config) ResolveNetworks() map[string]*Network {
	networks := DefaultNetworks()
	for name, override := range c.Networks {
		if override == nil {
			continue
		}
		if override.Name == "" {
			override.Name = name
		}
		networks[name] = override
	}
	return networks
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
