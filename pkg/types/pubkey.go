package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPublicKey is returned for malformed public keys.
var ErrInvalidPublicKey = errors.New("invalid public key")

// Curve identifies a signature scheme.
type Curve uint8

// Supported curves.
const (
	CurveEd25519   Curve = iota + 1 // 32-byte ed25519 key
	CurveSecp256k1                  // 33-byte compressed secp256k1 key (schnorr)
)

// String returns the curve prefix used in key strings.
func (c Curve) String() string {
	switch c {
	case CurveEd25519:
		return "ed25519"
	case CurveSecp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("curve(%d)", uint8(c))
	}
}

// KeySize returns the serialized key length for the curve.
func (c Curve) KeySize() int {
	switch c {
	case CurveEd25519:
		return 32
	case CurveSecp256k1:
		return 33
	default:
		return 0
	}
}

const maxKeySize = 33

// PublicKey is a curve-tagged public key. It is comparable.
type PublicKey struct {
	Curve Curve
	key   [maxKeySize]byte
}

// NewPublicKey builds a public key from raw bytes.
func NewPublicKey(curve Curve, key []byte) (PublicKey, error) {
	size := curve.KeySize()
	if size == 0 {
		return PublicKey{}, fmt.Errorf("%w: unknown curve %d", ErrInvalidPublicKey, curve)
	}
	if len(key) != size {
		return PublicKey{}, fmt.Errorf("%w: %s key must be %d bytes, got %d", ErrInvalidPublicKey, curve, size, len(key))
	}
	pk := PublicKey{Curve: curve}
	copy(pk.key[:], key)
	return pk, nil
}

// Bytes returns a copy of the raw key.
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, pk.Curve.KeySize())
	copy(b, pk.key[:])
	return b
}

// IsZero reports whether pk is the zero value.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// String returns "<curve>:<hex>".
func (pk PublicKey) String() string {
	return pk.Curve.String() + ":" + hex.EncodeToString(pk.Bytes())
}

// ParsePublicKey parses "<curve>:<hex>".
func ParsePublicKey(s string) (PublicKey, error) {
	prefix, data, ok := strings.Cut(s, ":")
	if !ok {
		return PublicKey{}, fmt.Errorf("%w: %q: missing curve", ErrInvalidPublicKey, s)
	}
	var curve Curve
	switch prefix {
	case "ed25519":
		curve = CurveEd25519
	case "secp256k1":
		curve = CurveSecp256k1
	default:
		return PublicKey{}, fmt.Errorf("%w: unknown curve %q", ErrInvalidPublicKey, prefix)
	}
	raw, err := hex.DecodeString(data)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return NewPublicKey(curve, raw)
}

// Compare orders keys by curve then bytes.
func (pk PublicKey) Compare(o PublicKey) int {
	return strings.Compare(pk.String(), o.String())
}

// MarshalText implements encoding.TextMarshaler.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// MarshalJSON encodes the key as a string.
func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.String())
}

// UnmarshalJSON decodes a key string.
func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return pk.UnmarshalText([]byte(s))
}
