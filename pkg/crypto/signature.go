package crypto

import (
	"crypto/ed25519"

	"github.com/Klingon-tech/klingnet-intents/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// Signer is a private key able to sign payloads. Schnorr signers expect a
// 32-byte hash, ed25519 signers take the raw message.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
	// PublicKey returns the serialized public key.
	PublicKey() []byte
	// Key returns the curve-tagged public key.
	Key() types.PublicKey
}

// Verify checks signature against the key's curve. For secp256k1, msg is
// the 32-byte hash that was signed.
func Verify(pk types.PublicKey, msg, signature []byte) bool {
	switch pk.Curve {
	case types.CurveSecp256k1:
		return VerifySignature(msg, signature, pk.Bytes())
	case types.CurveEd25519:
		return VerifyEd25519(msg, signature, pk.Bytes())
	}
	return false
}

// VerifySignature checks a BIP-340 style Schnorr signature over a 32-byte
// hash with a compressed secp256k1 public key.
func VerifySignature(hash, signature, publicKey []byte) bool {
	if len(hash) != 32 {
		return false
	}
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pub)
}

// VerifyEd25519 checks an ed25519 signature over msg.
func VerifyEd25519(msg, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, msg, signature)
}
