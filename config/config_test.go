package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults_Valid(t *testing.T) {
	for _, network := range []NetworkType{Mainnet, Testnet} {
		if err := Validate(Default(network)); err != nil {
			t.Errorf("%s defaults invalid: %v", network, err)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"network", func(c *Config) { c.Network = "devnet" }},
		{"rpc port", func(c *Config) { c.RPC.Port = 70000 }},
		{"backend", func(c *Config) { c.DB.Backend = "rocksdb" }},
		{"metrics addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "nope" }},
		{"dispatch interval", func(c *Config) { c.Dispatch.Interval = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.toml")
	data := `# comment
network = "testnet"

[db]
backend = "LevelDB"

[rpc]
port = 9000
allowed = ["127.0.0.1", "10.0.0.1"]

[metrics]
enabled = true
addr = "0.0.0.0:9100"

[dispatch]
interval = "500ms"

[log]
json = true
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultMainnet()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if cfg.Network != Testnet {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.DB.Backend != BackendLevelDB {
		t.Errorf("backend = %q, want normalized leveldb", cfg.DB.Backend)
	}
	if cfg.RPC.Port != 9000 || len(cfg.RPC.AllowedIPs) != 2 {
		t.Errorf("rpc = %+v", cfg.RPC)
	}
	if !cfg.RPC.Enabled || cfg.RPC.Addr != "127.0.0.1" {
		t.Errorf("unset rpc keys should keep defaults: %+v", cfg.RPC)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "0.0.0.0:9100" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	if cfg.Dispatch.Interval != 500*time.Millisecond {
		t.Errorf("dispatch interval = %v", cfg.Dispatch.Interval)
	}
	if !cfg.Log.JSON || cfg.Log.Level != "info" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoadFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "[rpc]\nprot = 9000\n"},
		{"wrong type", "[rpc]\nport = \"abc\"\n"},
		{"bad duration", "[dispatch]\ninterval = \"soon\"\n"},
		{"syntax", "network = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "intents.toml")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			if err := LoadFile(path, DefaultMainnet()); err == nil {
				t.Error("LoadFile() should fail")
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	cfg := DefaultMainnet()
	if err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"), cfg); err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.RPC.Port != 8545 {
		t.Errorf("missing file changed config: %+v", cfg.RPC)
	}
}

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"--testnet", "--db=memory", "--rpc=false", "--metrics", "--log-level=debug", "--dispatch-interval=250ms"})
	if err != nil {
		t.Fatalf("parseFlags() error: %v", err)
	}
	cfg := Default(NetworkType(f.Network))
	ApplyFlags(cfg, f)

	if cfg.Network != Testnet {
		t.Errorf("network = %s", cfg.Network)
	}
	if cfg.DB.Backend != BackendMemory {
		t.Errorf("backend = %s", cfg.DB.Backend)
	}
	if cfg.RPC.Enabled {
		t.Error("rpc should be disabled")
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
	if cfg.Dispatch.Interval != 250*time.Millisecond {
		t.Errorf("dispatch interval = %v", cfg.Dispatch.Interval)
	}
}

func TestApplyFlags_OnlyExplicit(t *testing.T) {
	f, err := parseFlags([]string{"--rpc-port=9999"})
	if err != nil {
		t.Fatalf("parseFlags() error: %v", err)
	}
	cfg := DefaultMainnet()
	cfg.Log.Level = "warn"
	cfg.RPC.Enabled = false
	ApplyFlags(cfg, f)

	if cfg.RPC.Port != 9999 {
		t.Errorf("rpc port = %d", cfg.RPC.Port)
	}
	// Flag defaults must not clobber values from the config file.
	if cfg.RPC.Enabled || cfg.Log.Level != "warn" {
		t.Errorf("unset flags overrode config: rpc=%v level=%s", cfg.RPC.Enabled, cfg.Log.Level)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	if _, err := parseFlags([]string{"extra", "--rpc"}); err == nil {
		t.Error("flag after positional argument should be reported")
	}
	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Error("positional argument should be rejected")
	}
	if _, err := parseFlags([]string{"--help"}); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("--help = %v, want flag.ErrHelp", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load([]string{"--testnet", "--datadir", dir, "--rpc-port=0"})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Network != Testnet || cfg.DataDir != dir || cfg.RPC.Port != 0 {
		t.Errorf("cfg = %+v", cfg)
	}
	if _, err := os.Stat(filepath.Join(dir, "intents.toml")); err != nil {
		t.Errorf("default config not written: %v", err)
	}

	if _, err := Load([]string{"--version"}); !errors.Is(err, ErrVersion) {
		t.Errorf("--version = %v, want ErrVersion", err)
	}
	if _, err := Load([]string{"--datadir", dir, "--db=rocksdb"}); err == nil {
		t.Error("invalid backend should fail validation")
	}
}

func TestEnsureDataDirs(t *testing.T) {
	cfg := DefaultTestnet()
	cfg.DataDir = t.TempDir()
	if err := EnsureDataDirs(cfg); err != nil {
		t.Fatalf("EnsureDataDirs() error: %v", err)
	}
	for _, dir := range []string{cfg.LedgerDir(), cfg.KeystoreDir(), cfg.LogsDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created", dir)
		}
	}
	// The written defaults load back to the same settings.
	loaded := DefaultMainnet()
	if err := LoadFile(cfg.ConfigFile(), loaded); err != nil {
		t.Fatalf("LoadFile(default) error: %v", err)
	}
	want := DefaultTestnet()
	if loaded.Network != Testnet || loaded.RPC.Port != want.RPC.Port || loaded.Metrics.Addr != want.Metrics.Addr {
		t.Errorf("default config = %+v", loaded)
	}
	if loaded.Dispatch.Interval != want.Dispatch.Interval || len(loaded.RPC.AllowedIPs) != 1 {
		t.Errorf("default config dispatch/rpc = %v %v", loaded.Dispatch.Interval, loaded.RPC.AllowedIPs)
	}
}
