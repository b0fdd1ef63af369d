package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrVersion is returned by Load when --version was given.
var ErrVersion = errors.New("version requested")

// Flags holds the daemon's command-line overrides. Only flags present on
// the command line are applied; see Set.
type Flags struct {
	Network  string
	DataDir  string
	Config   string
	Genesis  string
	DB       string
	RPC      bool
	RPCAddr  string
	RPCPort  int
	Allowed  string
	CORS     string
	Metrics  bool
	MetAddr  string
	Dispatch time.Duration
	LogLevel string
	LogFile  string
	LogJSON  bool

	set map[string]bool
}

// Set reports whether the named flag appeared on the command line.
func (f *Flags) Set(name string) bool { return f.set[name] }

func newFlagSet(f *Flags) *flag.FlagSet {
	fs := flag.NewFlagSet("intentsd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&f.Network, "network", "", "")
	fs.Var(boolFlag(func() { f.Network = string(Testnet) }), "testnet", "")
	fs.StringVar(&f.DataDir, "datadir", "", "")
	fs.StringVar(&f.Config, "config", "", "")
	fs.StringVar(&f.Config, "c", "", "")
	fs.StringVar(&f.Genesis, "genesis", "", "")
	fs.StringVar(&f.DB, "db", "", "")
	fs.BoolVar(&f.RPC, "rpc", true, "")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "")
	fs.StringVar(&f.Allowed, "rpc-allowed", "", "")
	fs.StringVar(&f.CORS, "rpc-cors", "", "")
	fs.BoolVar(&f.Metrics, "metrics", false, "")
	fs.StringVar(&f.MetAddr, "metrics-addr", "", "")
	fs.DurationVar(&f.Dispatch, "dispatch-interval", 0, "")
	fs.StringVar(&f.LogLevel, "log-level", "", "")
	fs.StringVar(&f.LogFile, "log-file", "", "")
	fs.BoolVar(&f.LogJSON, "log-json", false, "")
	fs.Bool("version", false, "")
	fs.Bool("v", false, "")
	return fs
}

func parseFlags(args []string) (*Flags, error) {
	f := &Flags{set: make(map[string]bool)}
	fs := newFlagSet(f)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	for _, arg := range fs.Args() {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}
	if n := fs.NArg(); n > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return f, nil
}

// boolFlag is a value-less flag that runs fn when present.
type boolFlag func()

func (b boolFlag) String() string   { return "false" }
func (b boolFlag) IsBoolFlag() bool { return true }
func (b boolFlag) Set(string) error { b(); return nil }

// ApplyFlags overlays the flags given on the command line onto cfg.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	str := map[string]*string{
		"datadir":      &cfg.DataDir,
		"genesis":      &cfg.Genesis,
		"db":           &cfg.DB.Backend,
		"rpc-addr":     &cfg.RPC.Addr,
		"metrics-addr": &cfg.Metrics.Addr,
		"log-level":    &cfg.Log.Level,
		"log-file":     &cfg.Log.File,
	}
	val := map[string]string{
		"datadir":      f.DataDir,
		"genesis":      f.Genesis,
		"db":           f.DB,
		"rpc-addr":     f.RPCAddr,
		"metrics-addr": f.MetAddr,
		"log-level":    f.LogLevel,
		"log-file":     f.LogFile,
	}
	for name, dst := range str {
		if f.Set(name) {
			*dst = val[name]
		}
	}
	if f.Set("rpc") {
		cfg.RPC.Enabled = f.RPC
	}
	if f.Set("rpc-port") {
		cfg.RPC.Port = f.RPCPort
	}
	if f.Set("rpc-allowed") {
		cfg.RPC.AllowedIPs = parseStringList(f.Allowed)
	}
	if f.Set("rpc-cors") {
		cfg.RPC.CORSOrigins = parseStringList(f.CORS)
	}
	if f.Set("metrics") {
		cfg.Metrics.Enabled = f.Metrics
	}
	if f.Set("dispatch-interval") {
		cfg.Dispatch.Interval = f.Dispatch
	}
	if f.Set("log-json") {
		cfg.Log.JSON = f.LogJSON
	}
}

// Usage is the daemon help text.
const Usage = `intentsd - multi-asset intents settlement node

Usage:
  intentsd [options]

Core:
  --network            mainnet (default) or testnet
  --testnet            shorthand for --network=testnet
  --datadir            data directory (default: ~/.klingnet-intents)
  --config, -c         config file (default: <datadir>/intents.toml)
  --genesis            genesis file, .json or .toml (default: built-in)
  --db                 storage backend: badger (default), leveldb, memory

RPC:
  --rpc                enable the JSON-RPC server (default: true)
  --rpc-addr           listen address (default: 127.0.0.1)
  --rpc-port           listen port (mainnet 8545, testnet 8645)
  --rpc-allowed        allowed client IPs or CIDRs, comma-separated
  --rpc-cors           allowed CORS origins, comma-separated

Metrics:
  --metrics            serve prometheus metrics on /metrics
  --metrics-addr       listen address (mainnet 127.0.0.1:9545)

Withdrawals:
  --dispatch-interval  outbox sweep interval (default: 2s)

Logging:
  --log-level          debug, info, warn or error (default: info)
  --log-file           also append JSON logs to this file
  --log-json           JSON logs on stdout

  --version, -v        print the version
  --help, -h           show this message

Ledger rules (verifying contract, fee, fee collector) come from the
genesis file and are fixed once the ledger is initialized.
`

// Load builds the node config from, in increasing precedence: network
// defaults, the config file, command-line flags. Data directories and a
// default config file are created on first start. It returns flag.ErrHelp
// and ErrVersion for --help and --version.
func Load(args []string) (*Config, error) {
	f, err := parseFlags(args)
	if err != nil {
		return nil, err
	}
	if f.Set("version") || f.Set("v") {
		return nil, ErrVersion
	}

	network := Mainnet
	if strings.EqualFold(f.Network, string(Testnet)) {
		network = Testnet
	}
	cfg := Default(network)
	if f.Set("datadir") {
		cfg.DataDir = f.DataDir
	}
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	path := f.Config
	if path == "" {
		path = cfg.ConfigFile()
	}
	if err := LoadFile(path, cfg); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	ApplyFlags(cfg, f)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory tree and, when missing, a
// default config file.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.NetworkDataDir(), cfg.LedgerDir(), cfg.KeystoreDir(), cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	path := cfg.ConfigFile()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefaultConfig(path, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
