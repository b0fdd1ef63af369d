// Package crypto provides the hashing and signature primitives used to
// authenticate intents.
package crypto

import (
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an address from a serialized public key.
// Address = BLAKE3(pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// ImplicitAccountID returns the id of the account implicitly owned by pk.
func ImplicitAccountID(pk types.PublicKey) types.AccountID {
	return AddressFromPubKey(pk.Bytes()).AccountID()
}
