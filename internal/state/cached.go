package state

import (
	"iter"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Klingon-tech/klingnet-intents/internal/amounts"
	"github.com/Klingon-tech/klingnet-intents/internal/bitmap"
	"github.com/Klingon-tech/klingnet-intents/internal/fees"
	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/internal/kv"
	"github.com/Klingon-tech/klingnet-intents/internal/lock"
	"github.com/Klingon-tech/klingnet-intents/internal/nonce"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// CachedState is a copy-on-write overlay over a read-only view. Reads merge
// the overlay with the view, writes only touch the overlay.
//
// Every successful mutation is also recorded, so Commit can replay the
// same calls against a writable State backed by the view. Dropping a
// CachedState discards its effects.
type CachedState struct {
	view     StateView
	accounts map[types.AccountID]*lock.Lock[cachedAccount]
	ops      []func(State) error
}

type cachedAccount struct {
	nonces      *nonce.Nonces
	authToggled bool

	keysAdded   mapset.Set[types.PublicKey]
	keysRemoved mapset.Set[types.PublicKey]

	balances *amounts.Amounts[types.TokenID, types.U128]
	// touched holds tokens whose overlay balance is authoritative, including
	// ones debited down to zero and pruned from balances.
	touched mapset.Set[types.TokenID]
}

func newCachedAccount() cachedAccount {
	return cachedAccount{
		nonces:      nonce.New(kv.NewHashMap[bitmap.Word, bitmap.Bits]()),
		keysAdded:   mapset.NewThreadUnsafeSet[types.PublicKey](),
		keysRemoved: mapset.NewThreadUnsafeSet[types.PublicKey](),
		balances:    amounts.NewInMemory[types.TokenID, types.U128](),
		touched:     mapset.NewThreadUnsafeSet[types.TokenID](),
	}
}

// NewCached wraps view in an empty overlay.
func NewCached(view StateView) *CachedState {
	return &CachedState{
		view:     view,
		accounts: make(map[types.AccountID]*lock.Lock[cachedAccount]),
	}
}

// Commit replays the recorded mutations, in order, against dst. dst must
// read the same data as the view the overlay was built on.
func (s *CachedState) Commit(dst State) error {
	for _, op := range s.ops {
		if err := op(dst); err != nil {
			return err
		}
	}
	return nil
}

// Mutations returns the number of recorded mutations.
func (s *CachedState) Mutations() int {
	return len(s.ops)
}

func (s *CachedState) record(op func(State) error) {
	s.ops = append(s.ops, op)
}

func (s *CachedState) account(id types.AccountID) *cachedAccount {
	if acc, ok := s.accounts[id]; ok {
		return acc.AsInnerUnchecked()
	}
	return nil
}

// getOrCreate returns the overlay entry, copying the lock state from the
// view on first touch.
func (s *CachedState) getOrCreate(id types.AccountID) *lock.Lock[cachedAccount] {
	acc, ok := s.accounts[id]
	if !ok {
		acc = lock.New(s.view.IsAccountLocked(id), newCachedAccount())
		s.accounts[id] = acc
	}
	return acc
}

func (s *CachedState) unlocked(id types.AccountID) (*cachedAccount, error) {
	acc, ok := s.getOrCreate(id).Get()
	if !ok {
		return nil, AccountError(id, ErrAccountLocked)
	}
	return acc, nil
}

func (s *CachedState) VerifyingContract() types.AccountID { return s.view.VerifyingContract() }
func (s *CachedState) WNearID() types.AccountID           { return s.view.WNearID() }
func (s *CachedState) Fee() fees.Pips                     { return s.view.Fee() }
func (s *CachedState) FeeCollector() types.AccountID      { return s.view.FeeCollector() }
func (s *CachedState) Now() time.Time                     { return s.view.Now() }

func (s *CachedState) HasPublicKey(id types.AccountID, pk types.PublicKey) bool {
	if acc := s.account(id); acc != nil {
		if acc.keysAdded.Contains(pk) {
			return true
		}
		if acc.keysRemoved.Contains(pk) {
			return false
		}
	}
	return s.view.HasPublicKey(id, pk)
}

func (s *CachedState) PublicKeys(id types.AccountID) iter.Seq[types.PublicKey] {
	return func(yield func(types.PublicKey) bool) {
		acc := s.account(id)
		for pk := range s.view.PublicKeys(id) {
			if acc != nil && acc.keysRemoved.Contains(pk) {
				continue
			}
			if !yield(pk) {
				return
			}
		}
		if acc == nil {
			return
		}
		added := acc.keysAdded.ToSlice()
		slices.SortFunc(added, types.PublicKey.Compare)
		for _, pk := range added {
			if !yield(pk) {
				return
			}
		}
	}
}

func (s *CachedState) IsNonceUsed(id types.AccountID, n types.Nonce) bool {
	if acc := s.account(id); acc != nil && acc.nonces.IsUsed(n) {
		return true
	}
	return s.view.IsNonceUsed(id, n)
}

func (s *CachedState) BalanceOf(id types.AccountID, token types.TokenID) types.U128 {
	if acc := s.account(id); acc != nil && acc.touched.Contains(token) {
		return acc.balances.AmountFor(token)
	}
	return s.view.BalanceOf(id, token)
}

func (s *CachedState) IsAccountLocked(id types.AccountID) bool {
	if acc, ok := s.accounts[id]; ok {
		return acc.IsLocked()
	}
	return s.view.IsAccountLocked(id)
}

func (s *CachedState) IsAuthByPredecessorIDEnabled(id types.AccountID) bool {
	toggled := false
	if acc := s.account(id); acc != nil {
		toggled = acc.authToggled
	}
	return s.view.IsAuthByPredecessorIDEnabled(id) != toggled
}

func (s *CachedState) AddPublicKey(id types.AccountID, pk types.PublicKey) error {
	had := s.view.HasPublicKey(id, pk)
	acc, err := s.unlocked(id)
	if err != nil {
		return err
	}
	var added bool
	if had {
		added = acc.keysRemoved.Contains(pk)
		acc.keysRemoved.Remove(pk)
	} else {
		added = acc.keysAdded.Add(pk)
	}
	if !added {
		return keyError(id, pk, ErrPublicKeyExists)
	}
	s.record(func(dst State) error { return dst.AddPublicKey(id, pk) })
	return nil
}

func (s *CachedState) RemovePublicKey(id types.AccountID, pk types.PublicKey) error {
	had := s.view.HasPublicKey(id, pk)
	acc, err := s.unlocked(id)
	if err != nil {
		return err
	}
	var removed bool
	if had {
		removed = acc.keysRemoved.Add(pk)
	} else {
		removed = acc.keysAdded.Contains(pk)
		acc.keysAdded.Remove(pk)
	}
	if !removed {
		return keyError(id, pk, ErrPublicKeyNotExist)
	}
	s.record(func(dst State) error { return dst.RemovePublicKey(id, pk) })
	return nil
}

func (s *CachedState) CommitNonce(id types.AccountID, n types.Nonce) error {
	acc, err := s.unlocked(id)
	if err != nil {
		return err
	}
	if s.view.IsNonceUsed(id, n) {
		return AccountError(id, nonce.ErrNonceUsed)
	}
	if err := acc.nonces.Commit(n, s.Now()); err != nil {
		return AccountError(id, err)
	}
	s.record(func(dst State) error { return dst.CommitNonce(id, n) })
	return nil
}

// seed copies the view balance into the overlay on first touch.
func (s *CachedState) seed(id types.AccountID, acc *cachedAccount, token types.TokenID) error {
	if acc.touched.Contains(token) {
		return nil
	}
	if _, ok := acc.balances.Add(token, s.view.BalanceOf(id, token)); !ok {
		return ErrBalanceOverflow
	}
	acc.touched.Add(token)
	return nil
}

// stage seeds every listed token so the update that follows can roll back
// through the balances alone. Seeding copies view balances and changes no
// read.
func (s *CachedState) stage(id types.AccountID, acc *cachedAccount, tokens []tokenAmount) error {
	for _, t := range tokens {
		if t.amount.IsZero() {
			return ErrInvalidIntent
		}
	}
	for _, t := range tokens {
		if err := s.seed(id, acc, t.token); err != nil {
			return AccountError(id, err)
		}
	}
	return nil
}

func (s *CachedState) add(id types.AccountID, tokens []tokenAmount) error {
	acc := s.getOrCreate(id).AsInnerUnchecked()
	if err := s.stage(id, acc, tokens); err != nil {
		return err
	}
	if !acc.balances.AddMany(replay(tokens)) {
		return AccountError(id, ErrBalanceOverflow)
	}
	return nil
}

func (s *CachedState) sub(id types.AccountID, tokens []tokenAmount) error {
	acc, err := s.unlocked(id)
	if err != nil {
		return err
	}
	if err := s.stage(id, acc, tokens); err != nil {
		return err
	}
	if !acc.balances.SubMany(replay(tokens)) {
		return AccountError(id, ErrBalanceOverflow)
	}
	return nil
}

func collect(tokens iter.Seq2[types.TokenID, types.U128]) []tokenAmount {
	var out []tokenAmount
	for t, a := range tokens {
		out = append(out, tokenAmount{t, a})
	}
	return out
}

func replay(tokens []tokenAmount) iter.Seq2[types.TokenID, types.U128] {
	return func(yield func(types.TokenID, types.U128) bool) {
		for _, t := range tokens {
			if !yield(t.token, t.amount) {
				return
			}
		}
	}
}

func (s *CachedState) InternalAddBalance(owner types.AccountID, tokens iter.Seq2[types.TokenID, types.U128]) error {
	list := collect(tokens)
	if err := s.add(owner, list); err != nil {
		return err
	}
	s.record(func(dst State) error { return dst.InternalAddBalance(owner, replay(list)) })
	return nil
}

func (s *CachedState) InternalSubBalance(owner types.AccountID, tokens iter.Seq2[types.TokenID, types.U128]) error {
	list := collect(tokens)
	if err := s.sub(owner, list); err != nil {
		return err
	}
	s.record(func(dst State) error { return dst.InternalSubBalance(owner, replay(list)) })
	return nil
}

func (s *CachedState) withdraw(owner types.AccountID, w any, op func(State) error) error {
	debits, err := WithdrawDebits(s, w)
	if err != nil {
		return err
	}
	if err := s.sub(owner, collect(debits)); err != nil {
		return err
	}
	s.record(op)
	return nil
}

func (s *CachedState) FtWithdraw(owner types.AccountID, w intents.FtWithdraw) error {
	return s.withdraw(owner, w, func(dst State) error { return dst.FtWithdraw(owner, w) })
}

func (s *CachedState) NftWithdraw(owner types.AccountID, w intents.NftWithdraw) error {
	return s.withdraw(owner, w, func(dst State) error { return dst.NftWithdraw(owner, w) })
}

func (s *CachedState) MtWithdraw(owner types.AccountID, w intents.MtWithdraw) error {
	return s.withdraw(owner, w, func(dst State) error { return dst.MtWithdraw(owner, w) })
}

func (s *CachedState) NativeWithdraw(owner types.AccountID, w intents.NativeWithdraw) error {
	return s.withdraw(owner, w, func(dst State) error { return dst.NativeWithdraw(owner, w) })
}

func (s *CachedState) StorageDeposit(owner types.AccountID, d intents.StorageDeposit) error {
	return s.withdraw(owner, d, func(dst State) error { return dst.StorageDeposit(owner, d) })
}

func (s *CachedState) AuthCall(signer types.AccountID, call intents.AuthCall) error {
	if err := s.sub(signer, collect(AuthCallDebits(s, call))); err != nil {
		return err
	}
	s.record(func(dst State) error { return dst.AuthCall(signer, call) })
	return nil
}

func (s *CachedState) SetAuthByPredecessorID(id types.AccountID, enable bool) (bool, error) {
	wasEnabled := s.IsAuthByPredecessorIDEnabled(id)
	if wasEnabled == enable {
		return wasEnabled, nil
	}
	acc, err := s.unlocked(id)
	if err != nil {
		return wasEnabled, err
	}
	acc.authToggled = !acc.authToggled
	s.record(func(dst State) error {
		_, err := dst.SetAuthByPredecessorID(id, enable)
		return err
	})
	return wasEnabled, nil
}
