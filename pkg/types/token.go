package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxTokenSubIDLen is the longest per-contract token id accepted for
// non-fungible and multi-token assets.
const MaxTokenSubIDLen = 127

// ErrInvalidTokenID is returned when a token id string cannot be parsed.
var ErrInvalidTokenID = errors.New("invalid token id")

// TokenKind is the asset standard a token belongs to.
type TokenKind uint8

// Token kinds.
const (
	TokenKindFungible    TokenKind = iota + 1 // fungible token contract
	TokenKindNonFungible                      // non-fungible token (unit of one)
	TokenKindMulti                            // multi-token contract (semi-fungible)
)

// String returns the kind's string prefix.
func (k TokenKind) String() string {
	switch k {
	case TokenKindFungible:
		return "ft"
	case TokenKindNonFungible:
		return "nft"
	case TokenKindMulti:
		return "mt"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TokenID identifies an asset held in the ledger. It is comparable and can
// be used as a map key. String forms:
//
//	ft:<contract>
//	nft:<contract>:<token_id>
//	mt:<contract>:<token_id>
type TokenID struct {
	Kind     TokenKind
	Contract AccountID
	SubID    string
}

// FungibleToken returns the id of a fungible token contract.
func FungibleToken(contract AccountID) TokenID {
	return TokenID{Kind: TokenKindFungible, Contract: contract}
}

// NonFungibleToken returns the id of a single non-fungible token.
func NonFungibleToken(contract AccountID, id string) TokenID {
	return TokenID{Kind: TokenKindNonFungible, Contract: contract, SubID: id}
}

// MultiToken returns the id of a token inside a multi-token contract.
func MultiToken(contract AccountID, id string) TokenID {
	return TokenID{Kind: TokenKindMulti, Contract: contract, SubID: id}
}

// IsZero reports whether t is the zero value.
func (t TokenID) IsZero() bool {
	return t == TokenID{}
}

// String returns the canonical string form.
func (t TokenID) String() string {
	if t.Kind == TokenKindFungible {
		return t.Kind.String() + ":" + string(t.Contract)
	}
	return t.Kind.String() + ":" + string(t.Contract) + ":" + t.SubID
}

// Validate checks the contract id and sub id constraints.
func (t TokenID) Validate() error {
	if err := t.Contract.Validate(); err != nil {
		return fmt.Errorf("%w: contract: %v", ErrInvalidTokenID, err)
	}
	switch t.Kind {
	case TokenKindFungible:
		if t.SubID != "" {
			return fmt.Errorf("%w: fungible token has no sub id", ErrInvalidTokenID)
		}
	case TokenKindNonFungible, TokenKindMulti:
		if t.SubID == "" {
			return fmt.Errorf("%w: empty token id", ErrInvalidTokenID)
		}
		if len(t.SubID) > MaxTokenSubIDLen {
			return fmt.Errorf("%w: token id longer than %d bytes", ErrInvalidTokenID, MaxTokenSubIDLen)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidTokenID, t.Kind)
	}
	return nil
}

// ParseTokenID parses the canonical string form.
func ParseTokenID(s string) (TokenID, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return TokenID{}, fmt.Errorf("%w: %q: missing kind", ErrInvalidTokenID, s)
	}
	var t TokenID
	switch kind {
	case "ft":
		t = FungibleToken(AccountID(rest))
	case "nft", "mt":
		contract, id, ok := strings.Cut(rest, ":")
		if !ok {
			return TokenID{}, fmt.Errorf("%w: %q: missing token id", ErrInvalidTokenID, s)
		}
		if kind == "nft" {
			t = NonFungibleToken(AccountID(contract), id)
		} else {
			t = MultiToken(AccountID(contract), id)
		}
	default:
		return TokenID{}, fmt.Errorf("%w: %q: unknown kind %q", ErrInvalidTokenID, s, kind)
	}
	if err := t.Validate(); err != nil {
		return TokenID{}, err
	}
	return t, nil
}

// Compare orders token ids by their string form.
func (t TokenID) Compare(o TokenID) int {
	return strings.Compare(t.String(), o.String())
}

// MarshalText implements encoding.TextMarshaler so TokenID can key JSON maps.
func (t TokenID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TokenID) UnmarshalText(text []byte) error {
	parsed, err := ParseTokenID(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON encodes the token id as a string.
func (t TokenID) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a token id string.
func (t *TokenID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}
