// Package intents defines the declarative actions a signer can put in a
// batch and their JSON encoding. Execution lives in the engine package.
//
// Every intent is encoded as a JSON object tagged with an "intent" field:
//
//	{"intent": "transfer", "receiver_id": "bob.near", "tokens": {"ft:usdc.near": "10"}}
package intents

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// ErrUnknownIntent is returned when decoding an unrecognized intent tag.
var ErrUnknownIntent = errors.New("unknown intent")

// Kind is the tag of an intent.
type Kind string

const (
	KindAddPublicKey           Kind = "add_public_key"
	KindRemovePublicKey        Kind = "remove_public_key"
	KindInvalidateNonces       Kind = "invalidate_nonces"
	KindTransfer               Kind = "transfer"
	KindFtWithdraw             Kind = "ft_withdraw"
	KindNftWithdraw            Kind = "nft_withdraw"
	KindMtWithdraw             Kind = "mt_withdraw"
	KindNativeWithdraw         Kind = "native_withdraw"
	KindStorageDeposit         Kind = "storage_deposit"
	KindTokenDiff              Kind = "token_diff"
	KindSetAuthByPredecessorID Kind = "set_auth_by_predecessor_id"
	KindAuthCall               Kind = "auth_call"
)

// Intent is one action inside a batch.
type Intent interface {
	Kind() Kind
}

// AddPublicKey grants a new key signing rights over the signer account.
type AddPublicKey struct {
	PublicKey types.PublicKey `json:"public_key"`
}

// RemovePublicKey revokes a key.
type RemovePublicKey struct {
	PublicKey types.PublicKey `json:"public_key"`
}

// InvalidateNonces burns nonces so that payloads signed with them can never
// execute.
type InvalidateNonces struct {
	Nonces []types.Nonce `json:"nonces"`
}

// Transfer moves tokens from the signer to another account.
type Transfer struct {
	ReceiverID types.AccountID              `json:"receiver_id"`
	Tokens     map[types.TokenID]types.U128 `json:"tokens"`
	Memo       string                       `json:"memo,omitempty"`
}

// FtWithdraw withdraws a fungible token to an external receiver.
type FtWithdraw struct {
	Token      types.AccountID `json:"token"`
	ReceiverID types.AccountID `json:"receiver_id"`
	Amount     types.U128      `json:"amount"`
	Memo       string          `json:"memo,omitempty"`
	Msg        string          `json:"msg,omitempty"`
	// StorageDeposit is paid in the wrapped native token on top of Amount.
	StorageDeposit *types.U128 `json:"storage_deposit,omitempty"`
}

// NftWithdraw withdraws a single non-fungible token.
type NftWithdraw struct {
	Token          types.AccountID `json:"token"`
	ReceiverID     types.AccountID `json:"receiver_id"`
	TokenID        string          `json:"token_id"`
	Memo           string          `json:"memo,omitempty"`
	Msg            string          `json:"msg,omitempty"`
	StorageDeposit *types.U128     `json:"storage_deposit,omitempty"`
}

// MtWithdraw withdraws a batch of multi-token ids from one contract.
// TokenIDs and Amounts are parallel slices.
type MtWithdraw struct {
	Token          types.AccountID `json:"token"`
	ReceiverID     types.AccountID `json:"receiver_id"`
	TokenIDs       []string        `json:"token_ids"`
	Amounts        []types.U128    `json:"amounts"`
	Memo           string          `json:"memo,omitempty"`
	Msg            string          `json:"msg,omitempty"`
	StorageDeposit *types.U128     `json:"storage_deposit,omitempty"`
}

// NativeWithdraw unwraps the wrapped native token and sends it out.
type NativeWithdraw struct {
	ReceiverID types.AccountID `json:"receiver_id"`
	Amount     types.U128      `json:"amount"`
}

// StorageDeposit pays for storage on an external contract, in the wrapped
// native token.
type StorageDeposit struct {
	ContractID          types.AccountID `json:"contract_id"`
	DepositForAccountID types.AccountID `json:"deposit_for_account_id"`
	Amount              types.U128      `json:"amount"`
}

// TokenDiff declares one side of a swap: negative deltas are given up,
// positive deltas are received.
type TokenDiff struct {
	Diff     map[types.TokenID]types.I128 `json:"diff"`
	Memo     string                       `json:"memo,omitempty"`
	Referral types.AccountID              `json:"referral,omitempty"`
}

// SetAuthByPredecessorID toggles whether the account may act without a
// signed payload.
type SetAuthByPredecessorID struct {
	Enabled bool `json:"enabled"`
}

// AuthCall notifies an external contract on behalf of the signer, paying
// AttachedDeposit in the wrapped native token.
type AuthCall struct {
	ContractID      types.AccountID `json:"contract_id"`
	Msg             string          `json:"msg"`
	AttachedDeposit types.U128      `json:"attached_deposit,omitzero"`
}

func (AddPublicKey) Kind() Kind           { return KindAddPublicKey }
func (RemovePublicKey) Kind() Kind        { return KindRemovePublicKey }
func (InvalidateNonces) Kind() Kind       { return KindInvalidateNonces }
func (Transfer) Kind() Kind               { return KindTransfer }
func (FtWithdraw) Kind() Kind             { return KindFtWithdraw }
func (NftWithdraw) Kind() Kind            { return KindNftWithdraw }
func (MtWithdraw) Kind() Kind             { return KindMtWithdraw }
func (NativeWithdraw) Kind() Kind         { return KindNativeWithdraw }
func (StorageDeposit) Kind() Kind         { return KindStorageDeposit }
func (TokenDiff) Kind() Kind              { return KindTokenDiff }
func (SetAuthByPredecessorID) Kind() Kind { return KindSetAuthByPredecessorID }
func (AuthCall) Kind() Kind               { return KindAuthCall }

// SortedTokens returns the keys of m in canonical order.
func SortedTokens[V any](m map[types.TokenID]V) []types.TokenID {
	keys := make([]types.TokenID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, types.TokenID.Compare)
	return keys
}

func newIntent(kind Kind) (Intent, error) {
	switch kind {
	case KindAddPublicKey:
		return &AddPublicKey{}, nil
	case KindRemovePublicKey:
		return &RemovePublicKey{}, nil
	case KindInvalidateNonces:
		return &InvalidateNonces{}, nil
	case KindTransfer:
		return &Transfer{}, nil
	case KindFtWithdraw:
		return &FtWithdraw{}, nil
	case KindNftWithdraw:
		return &NftWithdraw{}, nil
	case KindMtWithdraw:
		return &MtWithdraw{}, nil
	case KindNativeWithdraw:
		return &NativeWithdraw{}, nil
	case KindStorageDeposit:
		return &StorageDeposit{}, nil
	case KindTokenDiff:
		return &TokenDiff{}, nil
	case KindSetAuthByPredecessorID:
		return &SetAuthByPredecessorID{}, nil
	case KindAuthCall:
		return &AuthCall{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, kind)
	}
}

// deref turns the pointer produced by newIntent back into a value.
func deref(i Intent) Intent {
	switch v := i.(type) {
	case *AddPublicKey:
		return *v
	case *RemovePublicKey:
		return *v
	case *InvalidateNonces:
		return *v
	case *Transfer:
		return *v
	case *FtWithdraw:
		return *v
	case *NftWithdraw:
		return *v
	case *MtWithdraw:
		return *v
	case *NativeWithdraw:
		return *v
	case *StorageDeposit:
		return *v
	case *TokenDiff:
		return *v
	case *SetAuthByPredecessorID:
		return *v
	case *AuthCall:
		return *v
	}
	return i
}

// Marshal encodes a single intent with its tag.
func Marshal(i Intent) ([]byte, error) {
	body, err := json.Marshal(i)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(i.Kind())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"intent":`)
	buf.Write(tag)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Unmarshal decodes a single tagged intent.
func Unmarshal(data []byte) (Intent, error) {
	var head struct {
		Intent Kind `json:"intent"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode intent tag: %w", err)
	}
	i, err := newIntent(head.Intent)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, i); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Intent, err)
	}
	return deref(i), nil
}

// Intents is an ordered list of intents, executed in order.
type Intents []Intent

// MarshalJSON encodes the list as an array of tagged objects.
func (is Intents) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, len(is))
	for n, i := range is {
		raw, err := Marshal(i)
		if err != nil {
			return nil, err
		}
		raws[n] = raw
	}
	return json.Marshal(raws)
}

// UnmarshalJSON decodes an array of tagged objects.
func (is *Intents) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Intents, 0, len(raws))
	for n, raw := range raws {
		i, err := Unmarshal(raw)
		if err != nil {
			return fmt.Errorf("intent %d: %w", n, err)
		}
		out = append(out, i)
	}
	*is = out
	return nil
}
