package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Account id length bounds.
const (
	MinAccountIDLen = 2
	MaxAccountIDLen = 64
)

// ErrInvalidAccountID is returned for malformed account ids.
var ErrInvalidAccountID = errors.New("invalid account id")

// AccountID names a ledger account. Valid ids are 2-64 characters of
// lowercase alphanumerics separated by single '-', '_' or '.' characters.
type AccountID string

// String returns the id.
func (a AccountID) String() string {
	return string(a)
}

// Validate checks the id syntax.
func (a AccountID) Validate() error {
	s := string(a)
	if len(s) < MinAccountIDLen || len(s) > MaxAccountIDLen {
		return fmt.Errorf("%w: %q: length must be %d-%d", ErrInvalidAccountID, s, MinAccountIDLen, MaxAccountIDLen)
	}
	prevSep := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSep = false
		case c == '-' || c == '_' || c == '.':
			if prevSep {
				return fmt.Errorf("%w: %q: misplaced separator at %d", ErrInvalidAccountID, s, i)
			}
			prevSep = true
		default:
			return fmt.Errorf("%w: %q: invalid character %q", ErrInvalidAccountID, s, c)
		}
	}
	if prevSep {
		return fmt.Errorf("%w: %q: trailing separator", ErrInvalidAccountID, s)
	}
	return nil
}

// ParseAccountID validates and returns s as an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	id := AccountID(s)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// ImplicitAddress returns the address encoded in an implicit account id,
// or false if a is a named account.
func (a AccountID) ImplicitAddress() (Address, bool) {
	addr, err := ParseAddress(string(a))
	if err != nil || isHex40(string(a)) {
		return Address{}, false
	}
	return addr, true
}

// UnmarshalJSON decodes and validates an account id.
func (a *AccountID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParseAccountID(s)
	if err != nil {
		return err
	}
	*a = id
	return nil
}
