package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadFile overlays the TOML node config at path onto cfg. A missing file
// leaves cfg untouched. Keys the node does not know are reported as an
// error so typos do not silently fall back to defaults.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// parseStringList splits a comma-separated flag value.
func parseStringList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const defaultConfigTemplate = `# Klingnet Intents node configuration.
#
# Node settings only. Ledger rules (verifying contract, fee, fee collector)
# come from the genesis file and are fixed once the ledger is initialized.

network = %q

# datadir = "~/.klingnet-intents"

# Genesis file (.json or .toml). The built-in one is used when unset.
# genesis = "/path/to/genesis.toml"

[db]
# badger, leveldb or memory
backend = %q

[rpc]
enabled = %t
addr = %q
port = %d
allowed = [%s]
# cors = ["http://localhost:3000"]

[metrics]
enabled = %t
addr = %q

[dispatch]
# How often queued withdrawals are handed off.
interval = %q

[log]
level = %q
# file = "/var/log/intentsd.log"
json = %t
`

// WriteDefaultConfig writes the defaults of network as a commented TOML
// file.
func WriteDefaultConfig(path string, network NetworkType) error {
	d := Default(network)
	allowed := make([]string, len(d.RPC.AllowedIPs))
	for i, ip := range d.RPC.AllowedIPs {
		allowed[i] = fmt.Sprintf("%q", ip)
	}
	content := fmt.Sprintf(defaultConfigTemplate,
		string(d.Network),
		d.DB.Backend,
		d.RPC.Enabled, d.RPC.Addr, d.RPC.Port, strings.Join(allowed, ", "),
		d.Metrics.Enabled, d.Metrics.Addr,
		d.Dispatch.Interval.String(),
		d.Log.Level, d.Log.JSON,
	)
	return os.WriteFile(path, []byte(content), 0o644)
}
