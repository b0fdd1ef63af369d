// Package payload implements the signed envelopes intents are submitted in.
//
// An envelope carries the exact JSON text that was signed, the signer key,
// and a signature under one of the supported standards. Verification yields
// the signer key; extraction decodes the message.
package payload

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

var (
	ErrUnknownStandard = errors.New("unknown signing standard")
	ErrKeyMismatch     = errors.New("public key does not match standard")
	ErrMalformed       = errors.New("malformed payload")
)

// Standard names a signing scheme.
type Standard string

const (
	// StandardRawEd25519 signs the payload bytes with ed25519.
	StandardRawEd25519 Standard = "raw_ed25519"
	// StandardSchnorr signs the domain-separated BLAKE3 hash of the payload
	// with BIP-340 style schnorr over secp256k1.
	StandardSchnorr Standard = "schnorr_secp256k1"
)

// schnorrDomain prefixes payloads before hashing for schnorr signatures.
const schnorrDomain = "klingnet-intents/schnorr:"

func (s Standard) curve() (types.Curve, error) {
	switch s {
	case StandardRawEd25519:
		return types.CurveEd25519, nil
	case StandardSchnorr:
		return types.CurveSecp256k1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStandard, s)
	}
}

// Message is the signed content.
type Message struct {
	SignerID          types.AccountID `json:"signer_id"`
	VerifyingContract types.AccountID `json:"verifying_contract"`
	Deadline          types.Deadline  `json:"deadline"`
	Nonce             types.Nonce     `json:"nonce"`
	Intents           intents.Intents `json:"intents,omitempty"`
}

// Signed is a signed envelope.
type Signed struct {
	Standard  Standard        `json:"standard"`
	Payload   string          `json:"payload"`
	PublicKey types.PublicKey `json:"public_key"`
	Signature string          `json:"signature"`
}

// Hash identifies the envelope. It is stable for a given payload and
// standard and is what schnorr signatures commit to.
func (s *Signed) Hash() types.Hash {
	if s.Standard == StandardSchnorr {
		return crypto.Hash([]byte(schnorrDomain + s.Payload))
	}
	return crypto.Hash([]byte(s.Payload))
}

// Verify checks the signature and returns the signer key.
func (s *Signed) Verify() (types.PublicKey, bool) {
	curve, err := s.Standard.curve()
	if err != nil || s.PublicKey.Curve != curve {
		return types.PublicKey{}, false
	}
	sig, err := hex.DecodeString(s.Signature)
	if err != nil {
		return types.PublicKey{}, false
	}
	var msg []byte
	switch s.Standard {
	case StandardSchnorr:
		h := s.Hash()
		msg = h[:]
	default:
		msg = []byte(s.Payload)
	}
	if !crypto.Verify(s.PublicKey, msg, sig) {
		return types.PublicKey{}, false
	}
	return s.PublicKey, true
}

// Extract decodes the signed message.
func (s *Signed) Extract() (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(s.Payload), &m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if m.SignerID == "" {
		return Message{}, fmt.Errorf("%w: missing signer_id", ErrMalformed)
	}
	return m, nil
}

// Sign encodes msg and signs it under std.
func Sign(std Standard, msg Message, signer crypto.Signer) (Signed, error) {
	curve, err := std.curve()
	if err != nil {
		return Signed{}, err
	}
	key := signer.Key()
	if key.Curve != curve {
		return Signed{}, fmt.Errorf("%w: %s key for %s", ErrKeyMismatch, key.Curve, std)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return Signed{}, fmt.Errorf("encode message: %w", err)
	}
	s := Signed{Standard: std, Payload: string(body), PublicKey: key}

	var sig []byte
	switch std {
	case StandardSchnorr:
		h := s.Hash()
		sig, err = signer.Sign(h[:])
	default:
		sig, err = signer.Sign(body)
	}
	if err != nil {
		return Signed{}, fmt.Errorf("sign payload: %w", err)
	}
	s.Signature = hex.EncodeToString(sig)
	return s, nil
}
