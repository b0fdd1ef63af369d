package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Ed25519Key signs raw messages with ed25519.
type Ed25519Key struct {
	key ed25519.PrivateKey
}

// GenerateEd25519Key creates a new random ed25519 key.
func GenerateEd25519Key() (*Ed25519Key, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Ed25519Key{key: priv}, nil
}

// Ed25519KeyFromSeed restores a key from its 32-byte seed.
func Ed25519KeyFromSeed(seed []byte) (*Ed25519Key, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Key{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Sign signs msg. Unlike the schnorr signer, msg is not pre-hashed.
func (k *Ed25519Key) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(k.key, msg), nil
}

// PublicKey returns the raw 32-byte public key.
func (k *Ed25519Key) PublicKey() []byte {
	pub := k.key.Public().(ed25519.PublicKey)
	out := make([]byte, len(pub))
	copy(out, pub)
	return out
}

// Key returns the curve-tagged public key.
func (k *Ed25519Key) Key() types.PublicKey {
	key, _ := types.NewPublicKey(types.CurveEd25519, k.PublicKey())
	return key
}

// Seed returns the 32-byte private seed.
func (k *Ed25519Key) Seed() []byte {
	return k.key.Seed()
}
