package crypto

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-intents/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// ErrInvalidScalar is returned for a secp256k1 secret that is zero or not
// below the group order.
var ErrInvalidScalar = errors.New("invalid secp256k1 private key")

// PrivateKey is a secp256k1 key producing Schnorr signatures.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32-byte big-endian scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(b); overflow || s.IsZero() {
		return nil, ErrInvalidScalar
	}
	return &PrivateKey{key: secp256k1.NewPrivateKey(&s)}, nil
}

// Sign signs a 32-byte hash.
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	sig, err := schnorr.Sign(pk.key, hash)
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicKey returns the 33-byte compressed public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

func (pk *PrivateKey) Key() types.PublicKey {
	key, _ := types.NewPublicKey(types.CurveSecp256k1, pk.PublicKey())
	return key
}

// Serialize returns the 32-byte scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero wipes the scalar. The key must not be used afterwards.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}
