package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 20

// AddressHRP is the bech32 human-readable part of implicit account ids.
// It is the same on every network so account ids never change meaning.
const AddressHRP = "intent"

var errEmptyAddress = errors.New("empty address")

// Address is a 160-bit public key hash. Its bech32 form is the id of the
// implicit account owned by that key.
type Address [AddressSize]byte

func (a Address) IsZero() bool { return a == Address{} }

// String returns the bech32 form, "intent1...".
func (a Address) String() string {
	s, err := encodeBech32(AddressHRP, a[:])
	if err != nil {
		// Unreachable for a 20-byte payload.
		return hex.EncodeToString(a[:])
	}
	return s
}

// Hex returns the raw hex encoding.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// AccountID returns the implicit account id for this address.
func (a Address) AccountID() AccountID { return AccountID(a.String()) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText accepts the forms understood by ParseAddress. An empty
// string decodes to the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a bech32 address ("intent1...", either case) or 40
// hex characters.
func ParseAddress(s string) (Address, error) {
	var a Address
	switch {
	case s == "":
		return a, errEmptyAddress
	case isHex40(s):
		_, err := hex.Decode(a[:], []byte(s))
		return a, err
	}

	hrp, data, err := decodeBech32(s)
	if err != nil {
		return a, fmt.Errorf("invalid bech32 address: %w", err)
	}
	if hrp != AddressHRP {
		return a, fmt.Errorf("unknown address prefix %q", hrp)
	}
	if len(data) != AddressSize {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(data))
	}
	copy(a[:], data)
	return a, nil
}

func encodeBech32(hrp string, data []byte) (string, error) {
	conv, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, conv)
}

func decodeBech32(s string) (string, []byte, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return "", nil, err
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return strings.ToLower(hrp), conv, nil
}

func isHex40(s string) bool {
	if len(s) != 2*AddressSize {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
