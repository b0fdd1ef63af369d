// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: Defined in genesis, immutable for the life of the ledger
//   - Node settings: Runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is the node software version.
const Version = "0.1.0"

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without changing the ledger rules.
type Config struct {
	// Core
	Network NetworkType `toml:"network"`
	DataDir string      `toml:"datadir"`
	// Genesis is an optional genesis file (JSON or TOML) overriding the
	// built-in one for the network.
	Genesis string `toml:"genesis"`

	DB       DBConfig       `toml:"db"`
	RPC      RPCConfig      `toml:"rpc"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Log      LogConfig      `toml:"log"`
}

// Storage backends.
const (
	BackendBadger  = "badger"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// DBConfig selects the ledger storage backend.
type DBConfig struct {
	Backend string `toml:"backend"`
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Port        int      `toml:"port"`
	AllowedIPs  []string `toml:"allowed"`
	CORSOrigins []string `toml:"cors"` // Allowed CORS origins ("*" = all).
}

// MetricsConfig holds the prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"` // host:port serving /metrics
}

// DispatchConfig controls how often queued withdrawals are handed off.
type DispatchConfig struct {
	Interval time.Duration `toml:"interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
	JSON  bool   `toml:"json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-intents
//	macOS:   ~/Library/Application Support/KlingnetIntents
//	Windows: %APPDATA%\KlingnetIntents
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-intents"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetIntents")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetIntents")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetIntents")
	default:
		return filepath.Join(home, ".klingnet-intents")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the ledger storage directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "intents.toml")
}
