package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Klingon-tech/klingnet-intents/internal/fees"
	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// Every node settling the same ledger MUST use the same values.
// =============================================================================

// Genesis holds the protocol rules and the initial ledger contents.
// Amounts, token ids and keys are kept in their text form so the same
// file can be written as JSON or TOML.
type Genesis struct {
	// VerifyingContract is the identity every signed payload must name.
	VerifyingContract string `json:"verifying_contract" toml:"verifying_contract"`
	// WNearID is the contract of the wrapped native token, used for
	// storage deposits and attached deposits.
	WNearID string `json:"wnear_id" toml:"wnear_id"`
	// Fee is the protocol fee on token diffs, in pips (1/1,000,000).
	Fee          uint32 `json:"fee" toml:"fee"`
	FeeCollector string `json:"fee_collector" toml:"fee_collector"`

	// Alloc maps account -> token id -> decimal amount.
	Alloc map[string]map[string]string `json:"alloc,omitempty" toml:"alloc"`
	// PublicKeys maps account -> "<curve>:<hex>" keys.
	PublicKeys map[string][]string `json:"public_keys,omitempty" toml:"public_keys"`
	// Locked lists accounts that start locked.
	Locked []string `json:"locked,omitempty" toml:"locked"`
}

// Allocation is one genesis credit.
type Allocation struct {
	Account types.AccountID
	Token   types.TokenID
	Amount  types.U128
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/8888'/0'/0/0 (no passphrase)
// =============================================================================

const (
	// TestnetMnemonic is the well-known seed phrase of the testnet faucet.
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

	// TestnetFaucetKey is the faucet public key derived from TestnetMnemonic.
	TestnetFaucetKey = "secp256k1:030bef68f8657df88098a0546da1712c88b459788bea1a6bbe964004166a25144f"

	// TestnetFaucet is the named account holding the testnet allocation.
	TestnetFaucet = "faucet.testnet"
)

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		VerifyingContract: "intents.klingnet",
		WNearID:           "wrap.klingnet",
		Fee:               uint32(fees.OneBip),
		FeeCollector:      "fees.klingnet",
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.VerifyingContract = "intents.testnet"
	g.WNearID = "wrap.testnet"
	g.FeeCollector = "fees.testnet"

	// Testnet faucet: controlled by the well-known mnemonic.
	g.PublicKeys = map[string][]string{
		TestnetFaucet: {TestnetFaucetKey},
	}
	g.Alloc = map[string]map[string]string{
		TestnetFaucet: {
			"ft:wrap.testnet": "1000000000000000000000000000",
			"ft:usdc.testnet": "1000000000000000",
		},
	}
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// ResolveGenesis returns the genesis file named by cfg, or the built-in
// genesis of its network.
func ResolveGenesis(cfg *Config) (*Genesis, error) {
	if cfg.Genesis != "" {
		return LoadGenesis(cfg.Genesis)
	}
	return GenesisFor(cfg.Network), nil
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file. Files ending in
// .toml are decoded as TOML, everything else as JSON.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &g); err != nil {
			return nil, fmt.Errorf("parsing genesis file: %w", err)
		}
	} else if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file, as TOML when the path
// ends in .toml.
func (g *Genesis) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(g)
	} else {
		data, err = json.MarshalIndent(g, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	for field, id := range map[string]string{
		"verifying_contract": g.VerifyingContract,
		"wnear_id":           g.WNearID,
		"fee_collector":      g.FeeCollector,
	} {
		if _, err := types.ParseAccountID(id); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if _, err := fees.FromPips(g.Fee); err != nil {
		return fmt.Errorf("fee: %w", err)
	}
	// Inverting a 100% fee divides by zero in closure math.
	if fees.Pips(g.Fee) == fees.Max {
		return fmt.Errorf("fee must be below %d pips", fees.Max)
	}

	if _, err := g.Allocations(); err != nil {
		return err
	}
	if _, err := g.Keys(); err != nil {
		return err
	}
	if _, err := g.LockedAccounts(); err != nil {
		return err
	}
	return nil
}

// FeeRate returns the fee as a rate.
func (g *Genesis) FeeRate() fees.Pips {
	return fees.Pips(g.Fee)
}

// Allocations parses Alloc, sorted by account then token.
func (g *Genesis) Allocations() ([]Allocation, error) {
	var out []Allocation
	for account, tokens := range g.Alloc {
		id, err := types.ParseAccountID(account)
		if err != nil {
			return nil, fmt.Errorf("alloc: %w", err)
		}
		for tokenStr, amountStr := range tokens {
			token, err := types.ParseTokenID(tokenStr)
			if err != nil {
				return nil, fmt.Errorf("alloc %s: %w", account, err)
			}
			amount, err := types.ParseU128(amountStr)
			if err != nil {
				return nil, fmt.Errorf("alloc %s %s: %w", account, tokenStr, err)
			}
			if amount.IsZero() {
				return nil, fmt.Errorf("alloc %s %s: amount must be positive", account, tokenStr)
			}
			out = append(out, Allocation{Account: id, Token: token, Amount: amount})
		}
	}
	slices.SortFunc(out, func(a, b Allocation) int {
		if c := strings.Compare(string(a.Account), string(b.Account)); c != 0 {
			return c
		}
		return a.Token.Compare(b.Token)
	})
	return out, nil
}

// Keys parses PublicKeys.
func (g *Genesis) Keys() (map[types.AccountID][]types.PublicKey, error) {
	out := make(map[types.AccountID][]types.PublicKey, len(g.PublicKeys))
	for account, keys := range g.PublicKeys {
		id, err := types.ParseAccountID(account)
		if err != nil {
			return nil, fmt.Errorf("public_keys: %w", err)
		}
		for _, s := range keys {
			pk, err := types.ParsePublicKey(s)
			if err != nil {
				return nil, fmt.Errorf("public_keys %s: %w", account, err)
			}
			out[id] = append(out[id], pk)
		}
	}
	return out, nil
}

// LockedAccounts parses Locked.
func (g *Genesis) LockedAccounts() ([]types.AccountID, error) {
	out := make([]types.AccountID, 0, len(g.Locked))
	for _, account := range g.Locked {
		id, err := types.ParseAccountID(account)
		if err != nil {
			return nil, fmt.Errorf("locked: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to detect a data directory initialized from another genesis.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
