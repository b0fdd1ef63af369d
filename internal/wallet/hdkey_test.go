package wallet

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// testMaster returns the master key of the BIP-39 "abandon ... about" vector.
func testMaster(t *testing.T) *HDKey {
	t.Helper()
	seed, err := SeedFromMnemonic(vector12, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	return master
}

func TestNewMasterKey(t *testing.T) {
	master := testMaster(t)

	if !master.IsPrivate() {
		t.Error("master key should be private")
	}
	if master.Depth() != 0 {
		t.Errorf("master key depth = %d, want 0", master.Depth())
	}
	if len(master.PrivateKeyBytes()) != 32 {
		t.Errorf("private key length = %d, want 32", len(master.PrivateKeyBytes()))
	}
	if len(master.PublicKeyBytes()) != 33 {
		t.Errorf("public key length = %d, want 33", len(master.PublicKeyBytes()))
	}
}

func TestNewMasterKey_InvalidSeedLength(t *testing.T) {
	tests := []struct {
		name string
		seed []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 32)},
		{"too long", make([]byte, 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMasterKey(tt.seed); err == nil {
				t.Error("expected error for invalid seed length")
			}
		})
	}
}

func TestDerivePath(t *testing.T) {
	master := testMaster(t)

	c1, _ := master.DeriveChild(PurposeBIP44)
	c2, _ := c1.DeriveChild(CoinTypeIntents)

	combined, err := master.DerivePath(PurposeBIP44, CoinTypeIntents)
	if err != nil {
		t.Fatalf("DerivePath() error: %v", err)
	}
	if !bytes.Equal(c2.PrivateKeyBytes(), combined.PrivateKeyBytes()) {
		t.Error("DerivePath should equal sequential DeriveChild")
	}
}

func TestDeriveSigner(t *testing.T) {
	master := testMaster(t)

	key, err := master.DeriveSigner(0, 0)
	if err != nil {
		t.Fatalf("DeriveSigner() error: %v", err)
	}
	// m / purpose' / coin' / account' / chain / index
	if key.Depth() != 5 {
		t.Errorf("signer key depth = %d, want 5", key.Depth())
	}

	other, _ := master.DeriveSigner(0, 1)
	if bytes.Equal(key.PrivateKeyBytes(), other.PrivateKeyBytes()) {
		t.Error("different indices should produce different keys")
	}
	again, _ := testMaster(t).DeriveSigner(0, 0)
	if !bytes.Equal(key.PrivateKeyBytes(), again.PrivateKeyBytes()) {
		t.Error("derivation should be deterministic")
	}
}

func TestSigner_Curves(t *testing.T) {
	key, err := testMaster(t).DeriveSigner(0, 0)
	if err != nil {
		t.Fatalf("DeriveSigner() error: %v", err)
	}

	schnorrKey, err := key.Signer(types.CurveSecp256k1)
	if err != nil {
		t.Fatalf("Signer(secp256k1) error: %v", err)
	}
	hash := crypto.Hash([]byte("test message"))
	sig, err := schnorrKey.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(hash[:], sig, schnorrKey.PublicKey()) {
		t.Error("schnorr signature should verify")
	}
	if !bytes.Equal(schnorrKey.PublicKey(), key.PublicKeyBytes()) {
		t.Error("schnorr key should match the HD public key")
	}

	edKey, err := key.Signer(types.CurveEd25519)
	if err != nil {
		t.Fatalf("Signer(ed25519) error: %v", err)
	}
	msg := []byte(`{"signer_id":"alice.near"}`)
	sig, err = edKey.Sign(msg)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.Verify(edKey.Key(), msg, sig) {
		t.Error("ed25519 signature should verify")
	}

	edAgain, _ := key.Ed25519Key()
	if edAgain.Key() != edKey.Key() {
		t.Error("ed25519 derivation should be deterministic")
	}
	if crypto.ImplicitAccountID(edKey.Key()) == crypto.ImplicitAccountID(schnorrKey.Key()) {
		t.Error("curves should map to distinct implicit accounts")
	}
}

func TestSigner_PublicKeyOnly(t *testing.T) {
	pub := testMaster(t).Neuter()

	if pub.IsPrivate() || pub.PrivateKeyBytes() != nil {
		t.Error("neutered key should not be private")
	}
	for _, c := range []types.Curve{types.CurveSecp256k1, types.CurveEd25519} {
		if _, err := pub.Signer(c); err == nil {
			t.Errorf("Signer(%s) from public key should return error", c)
		}
	}
}

func TestNeuter_DeriveChild(t *testing.T) {
	master := testMaster(t)

	privChild, _ := master.DeriveChild(0)
	pubChild, err := master.Neuter().DeriveChild(0)
	if err != nil {
		t.Fatalf("DeriveChild from public key error: %v", err)
	}
	if !bytes.Equal(privChild.Neuter().PublicKeyBytes(), pubChild.PublicKeyBytes()) {
		t.Error("public derivation should match neutered private derivation")
	}
}
