package wallet

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// Derivation path: m/44'/397'/account'/0/index.
const (
	PurposeBIP44    = bip32.FirstHardenedChild + 44
	CoinTypeIntents = bip32.FirstHardenedChild + 397

	// ChainSigning is the only non-hardened chain used for signer keys.
	ChainSigning = 0
)

// ed25519Domain separates ed25519 seeds from the secp256k1 scalar they are
// derived from.
const ed25519Domain = "klingnet-intents/ed25519-seed:"

// HDKey is a BIP-32 key. Leaves can sign as secp256k1 (schnorr) or as
// ed25519 with a seed derived from the leaf scalar.
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DeriveChild derives a child key. Add bip32.FirstHardenedChild to the
// index for hardened derivation.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// DeriveSigner derives the leaf key at m/44'/397'/account'/0/index.
func (k *HDKey) DeriveSigner(account, index uint32) (*HDKey, error) {
	return k.DerivePath(
		PurposeBIP44,
		CoinTypeIntents,
		bip32.FirstHardenedChild+account,
		ChainSigning,
		index,
	)
}

// PrivateKeyBytes returns the 32-byte private scalar, or nil for a
// public-only key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	// bip32 pads private keys to 33 bytes with a leading zero.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// PublicKeyBytes returns the compressed 33-byte secp256k1 public key.
func (k *HDKey) PublicKeyBytes() []byte {
	return k.key.PublicKey().Key
}

// Signer returns a signer for the given curve.
func (k *HDKey) Signer(curve types.Curve) (crypto.Signer, error) {
	switch curve {
	case types.CurveSecp256k1:
		return k.SchnorrKey()
	case types.CurveEd25519:
		return k.Ed25519Key()
	default:
		return nil, fmt.Errorf("unsupported curve %s", curve)
	}
}

// SchnorrKey returns the leaf scalar as a secp256k1 signer.
func (k *HDKey) SchnorrKey() (*crypto.PrivateKey, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, fmt.Errorf("cannot create signer from public key")
	}
	return crypto.PrivateKeyFromBytes(priv)
}

// Ed25519Key returns an ed25519 signer seeded by BLAKE3(domain || scalar).
func (k *HDKey) Ed25519Key() (*crypto.Ed25519Key, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, fmt.Errorf("cannot create signer from public key")
	}
	seed := crypto.Hash(append([]byte(ed25519Domain), priv...))
	return crypto.Ed25519KeyFromSeed(seed[:])
}

// IsPrivate reports whether the key holds a private scalar.
func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Neuter returns a public-only copy.
func (k *HDKey) Neuter() *HDKey {
	return &HDKey{key: k.key.PublicKey()}
}
