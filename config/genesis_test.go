package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Klingon-tech/klingnet-intents/internal/fees"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

func TestGenesis_Validate_MainnetValid(t *testing.T) {
	g := MainnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("mainnet genesis should be valid: %v", err)
	}
}

func TestGenesis_Validate_TestnetValid(t *testing.T) {
	g := TestnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("testnet genesis should be valid: %v", err)
	}
}

func TestGenesis_Validate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Genesis)
	}{
		{"empty verifying contract", func(g *Genesis) { g.VerifyingContract = "" }},
		{"bad fee collector", func(g *Genesis) { g.FeeCollector = "Fees" }},
		{"fee too high", func(g *Genesis) { g.Fee = uint32(fees.Max) + 1 }},
		{"full fee", func(g *Genesis) { g.Fee = uint32(fees.Max) }},
		{"bad alloc token", func(g *Genesis) {
			g.Alloc = map[string]map[string]string{"alice.near": {"xx:usdc": "1"}}
		}},
		{"zero alloc", func(g *Genesis) {
			g.Alloc = map[string]map[string]string{"alice.near": {"ft:usdc.near": "0"}}
		}},
		{"bad key", func(g *Genesis) {
			g.PublicKeys = map[string][]string{"alice.near": {"ed25519:zz"}}
		}},
		{"bad locked", func(g *Genesis) { g.Locked = []string{"-"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := MainnetGenesis()
			tt.mutate(g)
			if err := g.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestGenesis_Allocations_Sorted(t *testing.T) {
	g := MainnetGenesis()
	g.Alloc = map[string]map[string]string{
		"bob.near":   {"ft:usdc.near": "5"},
		"alice.near": {"ft:wbtc.near": "2", "ft:usdc.near": "1"},
	}
	allocs, err := g.Allocations()
	if err != nil {
		t.Fatalf("Allocations() error: %v", err)
	}
	want := []struct {
		account types.AccountID
		token   string
		amount  uint64
	}{
		{"alice.near", "ft:usdc.near", 1},
		{"alice.near", "ft:wbtc.near", 2},
		{"bob.near", "ft:usdc.near", 5},
	}
	if len(allocs) != len(want) {
		t.Fatalf("got %d allocations, want %d", len(allocs), len(want))
	}
	for i, w := range want {
		a := allocs[i]
		if a.Account != w.account || a.Token.String() != w.token || a.Amount.Cmp(types.NewU128(w.amount)) != 0 {
			t.Errorf("allocation %d = %+v, want %+v", i, a, w)
		}
	}
}

func TestLoadGenesis_JSONAndTOML(t *testing.T) {
	dir := t.TempDir()
	src := TestnetGenesis()
	src.Locked = []string{"mallory.testnet"}

	for _, name := range []string{"genesis.json", "genesis.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := src.Save(path); err != nil {
				t.Fatalf("Save() error: %v", err)
			}
			g, err := LoadGenesis(path)
			if err != nil {
				t.Fatalf("LoadGenesis() error: %v", err)
			}
			want, _ := src.Hash()
			got, _ := g.Hash()
			if got != want {
				t.Errorf("round trip changed genesis: %+v", g)
			}
		})
	}
}

func TestLoadGenesis_TOMLText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.toml")
	data := `verifying_contract = "intents.local"
wnear_id = "wrap.local"
fee = 100
fee_collector = "fees.local"
locked = ["frozen.local"]

[alloc."alice.local"]
"ft:usdc.local" = "1000"

[public_keys]
"alice.local" = ["ed25519:0000000000000000000000000000000000000000000000000000000000000001"]
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	g, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis() error: %v", err)
	}
	if g.FeeRate() != fees.OneBip {
		t.Errorf("fee = %v, want 1 bip", g.FeeRate())
	}
	keys, _ := g.Keys()
	if len(keys["alice.local"]) != 1 {
		t.Errorf("keys = %v", keys)
	}
	allocs, _ := g.Allocations()
	if len(allocs) != 1 || allocs[0].Amount.Cmp(types.NewU128(1000)) != 0 {
		t.Errorf("allocations = %+v", allocs)
	}
}

func TestLoadGenesis_Missing(t *testing.T) {
	_, err := LoadGenesis(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadGenesis() error = %v, want not exist", err)
	}
}
