// Package ledger persists the intents ledger: account keys, nonces,
// balances, lock flags and the withdrawal outbox.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-intents/config"
	"github.com/Klingon-tech/klingnet-intents/internal/fees"
	"github.com/Klingon-tech/klingnet-intents/internal/log"
	"github.com/Klingon-tech/klingnet-intents/internal/state"
	"github.com/Klingon-tech/klingnet-intents/internal/storage"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Ledger errors.
var (
	ErrNotInitialized  = errors.New("ledger not initialized")
	ErrGenesisMismatch = errors.New("ledger was initialized from a different genesis")
)

// Params are the protocol parameters fixed at genesis.
type Params struct {
	VerifyingContract types.AccountID `json:"verifying_contract"`
	WNearID           types.AccountID `json:"wnear_id"`
	Fee               fees.Pips       `json:"fee"`
	FeeCollector      types.AccountID `json:"fee_collector"`
}

// Ledger owns the ledger DB. Writes go through Update, one at a time.
type Ledger struct {
	mu     sync.Mutex // Serializes write transactions.
	db     storage.DB
	params Params
	ready  bool
	clock  func() time.Time
	logger zerolog.Logger

	// notify is signalled after a commit that queued withdrawals.
	notify chan struct{}
}

// New opens the ledger stored in db. Params are recovered if the ledger
// was initialized before.
func New(db storage.DB) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	l := &Ledger{
		db:     db,
		clock:  time.Now,
		logger: log.Ledger,
		notify: make(chan struct{}, 1),
	}

	data, err := db.Get(keyParams)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &l.params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		l.ready = true
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("load params: %w", err)
	}
	return l, nil
}

// SetClock replaces the clock used by Update and View.
func (l *Ledger) SetClock(clock func() time.Time) {
	l.clock = clock
}

// SetLogger replaces the ledger logger.
func (l *Ledger) SetLogger(logger zerolog.Logger) {
	l.logger = logger
}

// Initialized reports whether genesis has been applied.
func (l *Ledger) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// Params returns the protocol parameters.
func (l *Ledger) Params() Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

// Now returns the ledger clock.
func (l *Ledger) Now() time.Time {
	return l.clock()
}

// InitFromGenesis applies gen to a fresh ledger. Re-applying the genesis a
// ledger was initialized from is a no-op.
func (l *Ledger) InitFromGenesis(gen *config.Genesis) error {
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}
	hash, err := gen.Hash()
	if err != nil {
		return fmt.Errorf("hash genesis: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored, err := l.db.Get(keyGenesis)
	switch {
	case err == nil:
		if !bytes.Equal(stored, hash[:]) {
			return ErrGenesisMismatch
		}
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("load genesis hash: %w", err)
	}

	params := Params{
		VerifyingContract: types.AccountID(gen.VerifyingContract),
		WNearID:           types.AccountID(gen.WNearID),
		Fee:               gen.FeeRate(),
		FeeCollector:      types.AccountID(gen.FeeCollector),
	}
	allocs, err := gen.Allocations()
	if err != nil {
		return err
	}
	keys, err := gen.Keys()
	if err != nil {
		return err
	}
	locked, err := gen.LockedAccounts()
	if err != nil {
		return err
	}

	tx := newTx(l.db, params, l.clock())
	// Keys before locks: a locked account rejects key changes.
	for account, pks := range keys {
		for _, pk := range pks {
			if err := tx.AddPublicKey(account, pk); err != nil {
				tx.Discard()
				return fmt.Errorf("genesis key: %w", err)
			}
		}
	}
	for _, a := range allocs {
		if err := tx.InternalAddBalance(a.Account, single(a.Token, a.Amount)); err != nil {
			tx.Discard()
			return fmt.Errorf("genesis alloc: %w", err)
		}
	}
	for _, account := range locked {
		tx.ForceLock(account)
	}

	data, err := json.Marshal(params)
	if err != nil {
		tx.Discard()
		return fmt.Errorf("encode params: %w", err)
	}
	if err := tx.buf.Put(keyParams, data); err != nil {
		tx.Discard()
		return fmt.Errorf("store params: %w", err)
	}
	if err := tx.buf.Put(keyGenesis, hash[:]); err != nil {
		tx.Discard()
		return fmt.Errorf("store genesis hash: %w", err)
	}
	if err := tx.Flush(); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}

	l.params = params
	l.ready = true
	l.logger.Info().
		Str("genesis", hash.Short()).
		Str("verifying_contract", string(params.VerifyingContract)).
		Str("fee", params.Fee.String()).
		Int("allocations", len(allocs)).
		Msg("Ledger initialized from genesis")
	return nil
}

// Update runs fn in a write transaction stamped with the ledger clock. The
// transaction is committed if fn returns nil and discarded otherwise.
func (l *Ledger) Update(fn func(tx *Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return ErrNotInitialized
	}

	tx := newTx(l.db, l.params, l.clock())
	if err := fn(tx); err != nil {
		tx.Discard()
		return err
	}
	queued := tx.Queued()
	if err := tx.Flush(); err != nil {
		return err
	}
	if queued > 0 {
		select {
		case l.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

// View runs fn against a transaction that is always discarded. Writes made
// by fn are visible to fn only.
func (l *Ledger) View(fn func(tx *Tx) error) error {
	l.mu.Lock()
	params, ready := l.params, l.ready
	l.mu.Unlock()
	if !ready {
		return ErrNotInitialized
	}

	tx := newTx(l.db, params, l.clock())
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Err()
}

// ForceLock locks an account. It reports false if it was already locked.
func (l *Ledger) ForceLock(account types.AccountID) (bool, error) {
	if err := account.Validate(); err != nil {
		return false, err
	}
	var changed bool
	err := l.Update(func(tx *Tx) error {
		changed = tx.ForceLock(account)
		return nil
	})
	if err == nil && changed {
		lg := log.WithAccount(l.logger, account.String())
		lg.Warn().Msg("Account locked")
	}
	return changed, err
}

// ForceUnlock unlocks an account. It reports false if it was not locked.
func (l *Ledger) ForceUnlock(account types.AccountID) (bool, error) {
	if err := account.Validate(); err != nil {
		return false, err
	}
	var changed bool
	err := l.Update(func(tx *Tx) error {
		changed = tx.ForceUnlock(account)
		return nil
	})
	if err == nil && changed {
		lg := log.WithAccount(l.logger, account.String())
		lg.Info().Msg("Account unlocked")
	}
	return changed, err
}

// Deposit credits tokens to owner. Deposits ignore the account lock.
func (l *Ledger) Deposit(owner types.AccountID, tokens map[types.TokenID]types.U128) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if err := validateTokens(tokens); err != nil {
		return err
	}
	err := l.Update(func(tx *Tx) error {
		return tx.InternalAddBalance(owner, state.Tokens(tokens))
	})
	if err == nil {
		lg := log.WithAccount(l.logger, owner.String())
		lg.Info().Int("tokens", len(tokens)).Msg("Deposit credited")
	}
	return err
}

// ForceWithdraw debits tokens from owner even if the account is locked.
func (l *Ledger) ForceWithdraw(owner types.AccountID, tokens map[types.TokenID]types.U128) error {
	if err := validateTokens(tokens); err != nil {
		return err
	}
	err := l.Update(func(tx *Tx) error {
		return tx.ForceSubBalance(owner, state.Tokens(tokens))
	})
	if err == nil {
		lg := log.WithAccount(l.logger, owner.String())
		lg.Warn().Int("tokens", len(tokens)).Msg("Forced withdrawal")
	}
	return err
}

// CleanupExpiredNonces evicts expired expirable nonces of account and
// returns how many storage words were freed.
func (l *Ledger) CleanupExpiredNonces(account types.AccountID, nonces []types.Nonce) (int, error) {
	var cleared int
	err := l.Update(func(tx *Tx) error {
		var err error
		cleared, err = tx.ClearExpiredNonces(account, nonces)
		return err
	})
	return cleared, err
}

func validateTokens(tokens map[types.TokenID]types.U128) error {
	if len(tokens) == 0 {
		return fmt.Errorf("no tokens")
	}
	for t := range tokens {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func single(t types.TokenID, a types.U128) iter.Seq2[types.TokenID, types.U128] {
	return func(yield func(types.TokenID, types.U128) bool) {
		yield(t, a)
	}
}
