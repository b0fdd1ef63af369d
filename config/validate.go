package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	cfg.DB.Backend = strings.ToLower(strings.TrimSpace(cfg.DB.Backend))
	if cfg.DB.Backend == "" {
		cfg.DB.Backend = BackendBadger
	}
	switch cfg.DB.Backend {
	case BackendBadger, BackendLevelDB, BackendMemory:
	default:
		return fmt.Errorf("db.backend must be %s, %s or %s", BackendBadger, BackendLevelDB, BackendMemory)
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr must be host:port: %w", err)
		}
	}
	if cfg.Dispatch.Interval <= 0 {
		return fmt.Errorf("dispatch.interval must be positive")
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}

	return nil
}
