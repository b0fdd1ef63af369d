package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Klingon-tech/klingnet-intents/internal/amounts"
	"github.com/Klingon-tech/klingnet-intents/internal/bitmap"
	"github.com/Klingon-tech/klingnet-intents/internal/fees"
	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/internal/kv"
	"github.com/Klingon-tech/klingnet-intents/internal/lock"
	"github.com/Klingon-tech/klingnet-intents/internal/nonce"
	"github.com/Klingon-tech/klingnet-intents/internal/state"
	"github.com/Klingon-tech/klingnet-intents/internal/storage"
	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Tx is a state.State over a write buffer on top of the ledger DB. Reads
// see the buffered writes. Nothing reaches the DB until Flush.
type Tx struct {
	params Params
	now    time.Time
	buf    *storage.BufferedDB
	sink   kv.ErrorSink
	queued int
}

var _ state.State = (*Tx)(nil)

func newTx(db storage.DB, params Params, now time.Time) *Tx {
	return &Tx{params: params, now: now, buf: storage.NewBuffered(db)}
}

// Err returns the first storage error seen by the transaction.
func (tx *Tx) Err() error {
	return tx.sink.Err()
}

// Pending returns the number of buffered writes.
func (tx *Tx) Pending() int {
	return tx.buf.Pending()
}

// Queued returns the number of withdrawals queued by the transaction.
func (tx *Tx) Queued() int {
	return tx.queued
}

// Flush writes the buffered changes in one batch. A transaction that saw
// a storage error is discarded instead.
func (tx *Tx) Flush() error {
	if err := tx.sink.Err(); err != nil {
		tx.Discard()
		return fmt.Errorf("ledger tx: %w", err)
	}
	if err := tx.buf.Flush(); err != nil {
		tx.Discard()
		return fmt.Errorf("ledger flush: %w", err)
	}
	return nil
}

// Discard drops the buffered changes.
func (tx *Tx) Discard() {
	tx.buf.Discard()
	tx.queued = 0
}

func (tx *Tx) VerifyingContract() types.AccountID { return tx.params.VerifyingContract }
func (tx *Tx) WNearID() types.AccountID           { return tx.params.WNearID }
func (tx *Tx) Fee() fees.Pips                     { return tx.params.Fee }
func (tx *Tx) FeeCollector() types.AccountID      { return tx.params.FeeCollector }
func (tx *Tx) Now() time.Time                     { return tx.now }

// account loads the account record. Unknown accounts are unlocked with
// default flags.
func (tx *Tx) account(id types.AccountID) *lock.Lock[accountFlags] {
	data, err := tx.buf.Get(accountKey(id))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			tx.sink.Record(fmt.Errorf("account %s get: %w", id, err))
		}
		return lock.Unlocked(accountFlags{})
	}
	rec, err := decodeAccount(data)
	if err != nil {
		tx.sink.Record(fmt.Errorf("account %s: %w", id, err))
		return lock.Unlocked(accountFlags{})
	}
	return rec
}

func (tx *Tx) putAccount(id types.AccountID, rec *lock.Lock[accountFlags]) {
	if !rec.IsLocked() && *rec.AsInnerUnchecked() == (accountFlags{}) {
		if err := tx.buf.Delete(accountKey(id)); err != nil {
			tx.sink.Record(fmt.Errorf("account %s delete: %w", id, err))
		}
		return
	}
	data, err := encodeAccount(rec)
	if err == nil {
		err = tx.buf.Put(accountKey(id), data)
	}
	if err != nil {
		tx.sink.Record(fmt.Errorf("account %s put: %w", id, err))
	}
}

// unlocked loads the account and fails if it is locked.
func (tx *Tx) unlocked(id types.AccountID) (*lock.Lock[accountFlags], *accountFlags, error) {
	rec := tx.account(id)
	flags, ok := rec.Get()
	if !ok {
		return nil, nil, state.AccountError(id, state.ErrAccountLocked)
	}
	return rec, flags, nil
}

func (tx *Tx) nonces(id types.AccountID) *nonce.Nonces {
	db := storage.NewPrefixDB(tx.buf, accountPrefix(prefixNonce, id))
	return nonce.New(kv.NewStoreMap(db, bitmap.WordCodec, bitmap.BitsCodec, &tx.sink))
}

func (tx *Tx) balances(id types.AccountID) *amounts.Amounts[types.TokenID, types.U128] {
	db := storage.NewPrefixDB(tx.buf, accountPrefix(prefixBalance, id))
	return amounts.New(kv.NewStoreMap(db, tokenCodec, u128Codec, &tx.sink))
}

// isImplicit reports whether pk is the key an implicit account id was
// derived from.
func isImplicit(id types.AccountID, pk types.PublicKey) bool {
	return crypto.ImplicitAccountID(pk) == id
}

func (tx *Tx) HasPublicKey(id types.AccountID, pk types.PublicKey) bool {
	if isImplicit(id, pk) {
		return !tx.account(id).AsInnerUnchecked().ImplicitKeyRemoved
	}
	ok, err := tx.buf.Has(publicKeyKey(id, pk))
	if err != nil {
		tx.sink.Record(fmt.Errorf("public key %s/%s: %w", id, pk, err))
	}
	return ok
}

// PublicKeys lists explicitly added keys. The implicit key of an implicit
// account cannot be recovered from its id and is not listed.
func (tx *Tx) PublicKeys(id types.AccountID) iter.Seq[types.PublicKey] {
	return func(yield func(types.PublicKey) bool) {
		prefix := accountPrefix(prefixKey, id)
		stop := errors.New("stop")
		err := tx.buf.ForEach(prefix, func(key, _ []byte) error {
			pk, err := types.ParsePublicKey(string(key[len(prefix):]))
			if err != nil {
				tx.sink.Record(fmt.Errorf("public key %s: %w", id, err))
				return nil
			}
			if !yield(pk) {
				return stop
			}
			return nil
		})
		if err != nil && !errors.Is(err, stop) {
			tx.sink.Record(fmt.Errorf("public keys %s: %w", id, err))
		}
	}
}

func (tx *Tx) IsNonceUsed(id types.AccountID, n types.Nonce) bool {
	return tx.nonces(id).IsUsed(n)
}

func (tx *Tx) BalanceOf(id types.AccountID, token types.TokenID) types.U128 {
	return tx.balances(id).AmountFor(token)
}

// Balances lists the non-zero balances of an account in token order.
func (tx *Tx) Balances(id types.AccountID) map[types.TokenID]types.U128 {
	return tx.balances(id).ToMap()
}

func (tx *Tx) IsAccountLocked(id types.AccountID) bool {
	return tx.account(id).IsLocked()
}

func (tx *Tx) IsAuthByPredecessorIDEnabled(id types.AccountID) bool {
	return !tx.account(id).AsInnerUnchecked().AuthByPredecessorIDDisabled
}

func (tx *Tx) AddPublicKey(id types.AccountID, pk types.PublicKey) error {
	rec, flags, err := tx.unlocked(id)
	if err != nil {
		return err
	}
	if tx.HasPublicKey(id, pk) {
		return fmt.Errorf("account %q: %w: %s", id, state.ErrPublicKeyExists, pk)
	}
	if isImplicit(id, pk) {
		flags.ImplicitKeyRemoved = false
		tx.putAccount(id, rec)
		return nil
	}
	if err := tx.buf.Put(publicKeyKey(id, pk), []byte{}); err != nil {
		tx.sink.Record(fmt.Errorf("public key %s/%s put: %w", id, pk, err))
	}
	return nil
}

func (tx *Tx) RemovePublicKey(id types.AccountID, pk types.PublicKey) error {
	rec, flags, err := tx.unlocked(id)
	if err != nil {
		return err
	}
	if !tx.HasPublicKey(id, pk) {
		return fmt.Errorf("account %q: %w: %s", id, state.ErrPublicKeyNotExist, pk)
	}
	if isImplicit(id, pk) {
		flags.ImplicitKeyRemoved = true
		tx.putAccount(id, rec)
		return nil
	}
	if err := tx.buf.Delete(publicKeyKey(id, pk)); err != nil {
		tx.sink.Record(fmt.Errorf("public key %s/%s delete: %w", id, pk, err))
	}
	return nil
}

func (tx *Tx) CommitNonce(id types.AccountID, n types.Nonce) error {
	if _, _, err := tx.unlocked(id); err != nil {
		return err
	}
	if err := tx.nonces(id).Commit(n, tx.now); err != nil {
		return state.AccountError(id, err)
	}
	return nil
}

func collect(tokens iter.Seq2[types.TokenID, types.U128]) ([]amounts.Pair[types.TokenID, types.U128], error) {
	var out []amounts.Pair[types.TokenID, types.U128]
	for t, a := range tokens {
		if a.IsZero() {
			return nil, fmt.Errorf("%w: zero amount of %s", state.ErrInvalidIntent, t)
		}
		out = append(out, amounts.Pair[types.TokenID, types.U128]{Key: t, Value: a})
	}
	return out, nil
}

func (tx *Tx) InternalAddBalance(owner types.AccountID, tokens iter.Seq2[types.TokenID, types.U128]) error {
	list, err := collect(tokens)
	if err != nil {
		return err
	}
	if !tx.balances(owner).AddMany(amounts.Seq(list...)) {
		return state.AccountError(owner, state.ErrBalanceOverflow)
	}
	return nil
}

func (tx *Tx) InternalSubBalance(owner types.AccountID, tokens iter.Seq2[types.TokenID, types.U128]) error {
	return tx.debit(owner, tokens, false)
}

// debit takes tokens from owner. force skips the lock check.
func (tx *Tx) debit(owner types.AccountID, tokens iter.Seq2[types.TokenID, types.U128], force bool) error {
	if _, ok := tx.account(owner).GetMaybeForced(force); !ok {
		return state.AccountError(owner, state.ErrAccountLocked)
	}
	list, err := collect(tokens)
	if err != nil {
		return err
	}
	if !tx.balances(owner).SubMany(amounts.Seq(list...)) {
		return state.AccountError(owner, state.ErrBalanceOverflow)
	}
	return nil
}

func (tx *Tx) withdraw(owner types.AccountID, w intents.Intent) error {
	debits, err := state.WithdrawDebits(tx, w)
	if err != nil {
		return err
	}
	if err := tx.InternalSubBalance(owner, debits); err != nil {
		return err
	}
	return tx.enqueue(owner, w)
}

func (tx *Tx) FtWithdraw(owner types.AccountID, w intents.FtWithdraw) error {
	return tx.withdraw(owner, w)
}

func (tx *Tx) NftWithdraw(owner types.AccountID, w intents.NftWithdraw) error {
	return tx.withdraw(owner, w)
}

func (tx *Tx) MtWithdraw(owner types.AccountID, w intents.MtWithdraw) error {
	return tx.withdraw(owner, w)
}

func (tx *Tx) NativeWithdraw(owner types.AccountID, w intents.NativeWithdraw) error {
	return tx.withdraw(owner, w)
}

func (tx *Tx) StorageDeposit(owner types.AccountID, d intents.StorageDeposit) error {
	return tx.withdraw(owner, d)
}

func (tx *Tx) AuthCall(signer types.AccountID, call intents.AuthCall) error {
	if err := tx.InternalSubBalance(signer, state.AuthCallDebits(tx, call)); err != nil {
		return err
	}
	return tx.enqueue(signer, call)
}

func (tx *Tx) SetAuthByPredecessorID(id types.AccountID, enable bool) (bool, error) {
	wasEnabled := tx.IsAuthByPredecessorIDEnabled(id)
	if wasEnabled == enable {
		return wasEnabled, nil
	}
	rec, flags, err := tx.unlocked(id)
	if err != nil {
		return wasEnabled, err
	}
	flags.AuthByPredecessorIDDisabled = !enable
	tx.putAccount(id, rec)
	return wasEnabled, nil
}

// ForceLock locks an account. It reports false if it already was.
func (tx *Tx) ForceLock(id types.AccountID) bool {
	rec := tx.account(id)
	if _, ok := rec.Lock(); !ok {
		return false
	}
	tx.putAccount(id, rec)
	return true
}

// ForceUnlock unlocks an account. It reports false if it was not locked.
func (tx *Tx) ForceUnlock(id types.AccountID) bool {
	rec := tx.account(id)
	if _, ok := rec.Unlock(); !ok {
		return false
	}
	tx.putAccount(id, rec)
	return true
}

// ForceSubBalance debits owner even when the account is locked.
func (tx *Tx) ForceSubBalance(owner types.AccountID, tokens iter.Seq2[types.TokenID, types.U128]) error {
	return tx.debit(owner, tokens, true)
}

// errFound stops a prefix scan at the first key.
var errFound = errors.New("found")

// exists reports whether anything is stored for id: an account record,
// a balance, a public key or a nonce word.
func (tx *Tx) exists(id types.AccountID) bool {
	if ok, err := tx.buf.Has(accountKey(id)); err != nil {
		tx.sink.Record(fmt.Errorf("account %s has: %w", id, err))
	} else if ok {
		return true
	}
	for _, prefix := range [][]byte{prefixBalance, prefixKey, prefixNonce} {
		err := tx.buf.ForEach(accountPrefix(prefix, id), func(_, _ []byte) error { return errFound })
		switch {
		case errors.Is(err, errFound):
			return true
		case err != nil:
			tx.sink.Record(fmt.Errorf("account %s scan: %w", id, err))
		}
	}
	return false
}

// ClearExpiredNonces evicts the storage words of expired expirable nonces
// and returns how many words were cleared. It fails for an account with
// no stored state.
func (tx *Tx) ClearExpiredNonces(id types.AccountID, ns []types.Nonce) (int, error) {
	if !tx.exists(id) {
		return 0, state.AccountError(id, state.ErrAccountNotFound)
	}
	set := tx.nonces(id)
	cleared := 0
	for _, n := range ns {
		if set.ClearExpired(n, tx.now) {
			cleared++
		}
	}
	return cleared, nil
}

func (tx *Tx) nextSeq() uint64 {
	var seq uint64
	data, err := tx.buf.Get(keyOutboxSeq)
	switch {
	case err == nil && len(data) == 8:
		seq = binary.BigEndian.Uint64(data)
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		tx.sink.Record(fmt.Errorf("outbox seq: %w", err))
	}
	seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := tx.buf.Put(keyOutboxSeq, buf[:]); err != nil {
		tx.sink.Record(fmt.Errorf("outbox seq put: %w", err))
	}
	return seq
}

// enqueue records a debited withdrawal for the dispatcher.
func (tx *Tx) enqueue(owner types.AccountID, in intents.Intent) error {
	body, err := intents.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode withdrawal: %w", err)
	}
	w := Withdrawal{
		Seq:    tx.nextSeq(),
		Owner:  owner,
		Kind:   in.Kind(),
		Intent: body,
		Queued: tx.now,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode withdrawal: %w", err)
	}
	if err := tx.buf.Put(outboxKey(w.Seq), data); err != nil {
		tx.sink.Record(fmt.Errorf("outbox put: %w", err))
	}
	tx.queued++
	return nil
}
