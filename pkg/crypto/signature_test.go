package crypto

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// signers returns one fresh signer per curve with the message each expects.
func signers(t *testing.T) []struct {
	name   string
	signer Signer
	msg    []byte
} {
	t.Helper()
	sk, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	ek, err := GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key() error: %v", err)
	}
	hash := Hash([]byte("signed payload"))
	return []struct {
		name   string
		signer Signer
		msg    []byte
	}{
		{"secp256k1", sk, hash[:]},
		{"ed25519", ek, []byte(`{"signer_id":"alice.near"}`)},
	}
}

func TestVerify(t *testing.T) {
	for _, tt := range signers(t) {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := tt.signer.Sign(tt.msg)
			if err != nil {
				t.Fatalf("Sign() error: %v", err)
			}
			if len(sig) != 64 {
				t.Errorf("signature length = %d, want 64", len(sig))
			}
			pk := tt.signer.Key()
			if !bytes.Equal(pk.Bytes(), tt.signer.PublicKey()) {
				t.Error("Key() and PublicKey() disagree")
			}
			if !Verify(pk, tt.msg, sig) {
				t.Fatal("valid signature rejected")
			}

			otherMsg := bytes.Clone(tt.msg)
			otherMsg[0] ^= 0xff
			if Verify(pk, otherMsg, sig) {
				t.Error("signature verified for a different message")
			}

			bad := bytes.Clone(sig)
			bad[10] ^= 0x01
			if Verify(pk, tt.msg, bad) {
				t.Error("corrupted signature verified")
			}
			if Verify(pk, tt.msg, sig[:63]) {
				t.Error("truncated signature verified")
			}
		})
	}
}

func TestVerify_CrossCurve(t *testing.T) {
	all := signers(t)
	sk, ek := all[0], all[1]

	sig, err := sk.signer.Sign(sk.msg)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	// Same bytes tagged with the wrong curve.
	wrong, err := types.NewPublicKey(types.CurveEd25519, ek.signer.PublicKey())
	if err != nil {
		t.Fatalf("NewPublicKey() error: %v", err)
	}
	if Verify(wrong, sk.msg, sig) {
		t.Error("secp256k1 signature verified under an ed25519 key")
	}
	if Verify(types.PublicKey{}, sk.msg, sig) {
		t.Error("zero key should never verify")
	}
}

func TestVerifySignature_InvalidInputs(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	hash := Hash([]byte("x"))
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	tests := []struct {
		name      string
		hash, sig []byte
		pub       []byte
	}{
		{"short hash", hash[:16], sig, key.PublicKey()},
		{"empty signature", hash[:], nil, key.PublicKey()},
		{"garbage public key", hash[:], sig, []byte{0x02, 0x01}},
		{"uncompressed prefix only", hash[:], sig, []byte{0x04}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifySignature(tt.hash, tt.sig, tt.pub) {
				t.Error("VerifySignature() = true")
			}
		})
	}
}

func TestVerifyEd25519_InvalidLengths(t *testing.T) {
	key, err := GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key() error: %v", err)
	}
	sig, _ := key.Sign([]byte("m"))
	if VerifyEd25519([]byte("m"), sig, key.PublicKey()[:31]) {
		t.Error("short public key verified")
	}
	if VerifyEd25519([]byte("m"), append(sig, 0), key.PublicKey()) {
		t.Error("long signature verified")
	}
}

func TestEd25519KeyFromSeed(t *testing.T) {
	key, err := GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key() error: %v", err)
	}
	restored, err := Ed25519KeyFromSeed(key.Seed())
	if err != nil {
		t.Fatalf("Ed25519KeyFromSeed() error: %v", err)
	}
	if restored.Key() != key.Key() {
		t.Error("restored key differs")
	}
	if _, err := Ed25519KeyFromSeed(make([]byte, 31)); err == nil {
		t.Error("31-byte seed should be rejected")
	}
}
