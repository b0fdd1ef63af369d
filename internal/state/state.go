// Package state defines the read and write contracts the execution engine
// runs against, and CachedState, an in-memory overlay over any read view.
package state

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Klingon-tech/klingnet-intents/internal/fees"
	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// State errors.
var (
	ErrAccountNotFound             = errors.New("account not found")
	ErrAccountLocked               = errors.New("account is locked")
	ErrAuthByPredecessorIDDisabled = errors.New("auth by predecessor id is disabled")
	ErrBalanceOverflow             = errors.New("balance overflow")
	ErrInvalidIntent               = errors.New("invalid intent")
	ErrPublicKeyExists             = errors.New("public key already exists")
	ErrPublicKeyNotExist           = errors.New("public key does not exist")
)

// AccountError wraps err with the account it concerns.
func AccountError(account types.AccountID, err error) error {
	return fmt.Errorf("account %q: %w", account, err)
}

func keyError(account types.AccountID, pk types.PublicKey, err error) error {
	return fmt.Errorf("account %q: %w: %s", account, err, pk)
}

// StateView is the read-only side of the ledger.
type StateView interface {
	// VerifyingContract is the identity signed payloads must be bound to.
	VerifyingContract() types.AccountID
	// WNearID is the contract of the wrapped native token.
	WNearID() types.AccountID
	Fee() fees.Pips
	FeeCollector() types.AccountID
	// Now is the clock used for nonce and deadline checks.
	Now() time.Time

	HasPublicKey(account types.AccountID, pk types.PublicKey) bool
	PublicKeys(account types.AccountID) iter.Seq[types.PublicKey]
	IsNonceUsed(account types.AccountID, n types.Nonce) bool
	BalanceOf(account types.AccountID, token types.TokenID) types.U128
	IsAccountLocked(account types.AccountID) bool
	IsAuthByPredecessorIDEnabled(account types.AccountID) bool
}

// State extends StateView with the mutations intents can perform.
//
// Credits never check the account lock. Every debit requires the account
// to exist and be unlocked.
type State interface {
	StateView

	AddPublicKey(account types.AccountID, pk types.PublicKey) error
	RemovePublicKey(account types.AccountID, pk types.PublicKey) error
	CommitNonce(account types.AccountID, n types.Nonce) error

	InternalAddBalance(owner types.AccountID, tokens iter.Seq2[types.TokenID, types.U128]) error
	InternalSubBalance(owner types.AccountID, tokens iter.Seq2[types.TokenID, types.U128]) error

	FtWithdraw(owner types.AccountID, w intents.FtWithdraw) error
	NftWithdraw(owner types.AccountID, w intents.NftWithdraw) error
	MtWithdraw(owner types.AccountID, w intents.MtWithdraw) error
	NativeWithdraw(owner types.AccountID, w intents.NativeWithdraw) error
	StorageDeposit(owner types.AccountID, d intents.StorageDeposit) error
	AuthCall(signer types.AccountID, call intents.AuthCall) error

	// SetAuthByPredecessorID sets the flag and returns its previous value.
	SetAuthByPredecessorID(account types.AccountID, enable bool) (bool, error)
}

// WNearTokenID returns the token id of the wrapped native token.
func WNearTokenID(v StateView) types.TokenID {
	return types.FungibleToken(v.WNearID())
}

// InternalApplyDeltas credits positive deltas and debits negative ones, in
// order.
func InternalApplyDeltas(s State, owner types.AccountID, deltas iter.Seq2[types.TokenID, types.I128]) error {
	for token, d := range deltas {
		one := single(token, d.Abs())
		var err error
		if d.Sign() < 0 {
			err = s.InternalSubBalance(owner, one)
		} else {
			err = s.InternalAddBalance(owner, one)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func single(token types.TokenID, amount types.U128) iter.Seq2[types.TokenID, types.U128] {
	return func(yield func(types.TokenID, types.U128) bool) {
		yield(token, amount)
	}
}

// Tokens adapts a map into a sequence in canonical token order.
func Tokens[V any](m map[types.TokenID]V) iter.Seq2[types.TokenID, V] {
	return func(yield func(types.TokenID, V) bool) {
		for _, t := range intents.SortedTokens(m) {
			if !yield(t, m[t]) {
				return
			}
		}
	}
}

// WithdrawDebits lists what a withdrawal takes from its owner: the
// withdrawn tokens plus an optional storage deposit in the wrapped native
// token.
func WithdrawDebits(v StateView, w any) (iter.Seq2[types.TokenID, types.U128], error) {
	var (
		pairs   []tokenAmount
		deposit *types.U128
	)
	switch w := w.(type) {
	case intents.FtWithdraw:
		pairs = append(pairs, tokenAmount{types.FungibleToken(w.Token), w.Amount})
		deposit = w.StorageDeposit
	case intents.NftWithdraw:
		pairs = append(pairs, tokenAmount{types.NonFungibleToken(w.Token, w.TokenID), types.NewU128(1)})
		deposit = w.StorageDeposit
	case intents.MtWithdraw:
		if len(w.TokenIDs) != len(w.Amounts) || len(w.TokenIDs) == 0 {
			return nil, ErrInvalidIntent
		}
		for n, id := range w.TokenIDs {
			pairs = append(pairs, tokenAmount{types.MultiToken(w.Token, id), w.Amounts[n]})
		}
		deposit = w.StorageDeposit
	case intents.NativeWithdraw:
		pairs = append(pairs, tokenAmount{WNearTokenID(v), w.Amount})
	case intents.StorageDeposit:
		pairs = append(pairs, tokenAmount{WNearTokenID(v), w.Amount})
	default:
		return nil, fmt.Errorf("%w: %T is not a withdrawal", ErrInvalidIntent, w)
	}
	for _, p := range pairs {
		if err := p.token.Validate(); err != nil {
			return nil, err
		}
	}
	if deposit != nil {
		pairs = append(pairs, tokenAmount{WNearTokenID(v), *deposit})
	}
	return func(yield func(types.TokenID, types.U128) bool) {
		for _, p := range pairs {
			if !yield(p.token, p.amount) {
				return
			}
		}
	}, nil
}

type tokenAmount struct {
	token  types.TokenID
	amount types.U128
}

// AuthCallDebits lists what an auth call takes from its signer.
func AuthCallDebits(v StateView, call intents.AuthCall) iter.Seq2[types.TokenID, types.U128] {
	if call.AttachedDeposit.IsZero() {
		return func(func(types.TokenID, types.U128) bool) {}
	}
	return single(WNearTokenID(v), call.AttachedDeposit)
}
