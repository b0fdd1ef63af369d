// Package engine executes batches of intents against a State.
//
// A batch is one or more signed payloads, or a list of intents submitted
// directly by an account that allows it. Execution stops at the first
// failing intent. The engine never undoes work: callers run it over a
// state.CachedState and discard the overlay when an error is returned.
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-intents/internal/amounts"
	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/internal/nonce"
	"github.com/Klingon-tech/klingnet-intents/internal/payload"
	"github.com/Klingon-tech/klingnet-intents/internal/state"
	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Engine runs one batch. It is not safe for concurrent use.
type Engine struct {
	state     state.State
	inspector Inspector

	// diffs holds every token diff delta of the batch, in execution order.
	diffs []amounts.Pair[types.TokenID, types.I128]
}

// New returns an engine executing against s.
func New(s state.State, inspector Inspector) *Engine {
	return &Engine{state: s, inspector: inspector}
}

// ExecuteSigned verifies and executes payloads in order, then checks that
// the token diffs of all payloads match.
func (e *Engine) ExecuteSigned(payloads ...payload.Signed) error {
	for i := range payloads {
		if err := e.executeSigned(&payloads[i]); err != nil {
			return fmt.Errorf("payload %d: %w", i, err)
		}
	}
	return e.Finalize()
}

func (e *Engine) executeSigned(p *payload.Signed) error {
	pk, ok := p.Verify()
	if !ok {
		return ErrInvalidSignature
	}
	msg, err := p.Extract()
	if err != nil {
		return err
	}
	hash := p.Hash()

	if msg.VerifyingContract != e.state.VerifyingContract() {
		return fmt.Errorf("%w: %q", ErrWrongVerifyingContract, msg.VerifyingContract)
	}
	if msg.Deadline.HasExpired(e.state.Now()) {
		return ErrDeadlineExpired
	}
	if !e.state.HasPublicKey(msg.SignerID, pk) {
		return fmt.Errorf("account %q: %w: %s", msg.SignerID, state.ErrPublicKeyNotExist, pk)
	}
	if err := e.state.CommitNonce(msg.SignerID, msg.Nonce); err != nil {
		return err
	}
	if exp, ok := nonce.ParseExpirable(msg.Nonce); ok && msg.Deadline.After(exp.Deadline.Time) {
		return ErrDeadlineGreaterThanNonce
	}
	e.inspector.OnDeadline(msg.Deadline)

	if err := e.ExecuteIntents(msg.SignerID, hash, msg.Intents); err != nil {
		return err
	}
	e.inspector.OnIntentExecuted(msg.SignerID, hash, msg.Nonce)
	return nil
}

// ExecuteAsPredecessor executes batch on behalf of signer without a
// signature or nonce. The signer must have auth by predecessor id enabled.
func (e *Engine) ExecuteAsPredecessor(signer types.AccountID, batch intents.Intents) error {
	if !e.state.IsAuthByPredecessorIDEnabled(signer) {
		return state.AccountError(signer, state.ErrAuthByPredecessorIDDisabled)
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode intents: %w", err)
	}
	hash := crypto.Hash(body)
	if err := e.ExecuteIntents(signer, hash, batch); err != nil {
		return err
	}
	e.inspector.OnIntentExecuted(signer, hash, types.Nonce{})
	return e.Finalize()
}

// ExecuteIntents runs batch for signer. hash tags the emitted events.
func (e *Engine) ExecuteIntents(signer types.AccountID, hash types.Hash, batch intents.Intents) error {
	for i, intent := range batch {
		if err := e.execute(signer, hash, intent); err != nil {
			return fmt.Errorf("intent %d (%s): %w", i, intent.Kind(), err)
		}
	}
	return nil
}

// Finalize checks that the token diffs executed so far net to zero after
// fees.
func (e *Engine) Finalize() error {
	unmatched, ok := ClosureDeltas(amounts.Seq(e.diffs...), e.state.Fee())
	if !ok {
		return fmt.Errorf("%w: closure overflow", ErrInvariantViolated)
	}
	if len(unmatched) > 0 {
		return &InvariantViolatedError{Unmatched: unmatched}
	}
	return nil
}

func (e *Engine) emit(signer types.AccountID, hash types.Hash, intent intents.Intent) {
	e.inspector.OnEvent(Event{Kind: intent.Kind(), AccountID: signer, IntentHash: hash, Intent: intent})
}

func (e *Engine) execute(signer types.AccountID, hash types.Hash, intent intents.Intent) error {
	s := e.state
	switch in := intent.(type) {
	case intents.AddPublicKey:
		e.emit(signer, hash, in)
		return s.AddPublicKey(signer, in.PublicKey)
	case intents.RemovePublicKey:
		e.emit(signer, hash, in)
		return s.RemovePublicKey(signer, in.PublicKey)
	case intents.InvalidateNonces:
		e.emit(signer, hash, in)
		for _, n := range in.Nonces {
			if err := s.CommitNonce(signer, n); err != nil {
				return err
			}
		}
		return nil
	case intents.Transfer:
		return e.transfer(signer, hash, in)
	case intents.FtWithdraw:
		e.emit(signer, hash, in)
		return s.FtWithdraw(signer, in)
	case intents.NftWithdraw:
		e.emit(signer, hash, in)
		return s.NftWithdraw(signer, in)
	case intents.MtWithdraw:
		e.emit(signer, hash, in)
		return s.MtWithdraw(signer, in)
	case intents.NativeWithdraw:
		e.emit(signer, hash, in)
		return s.NativeWithdraw(signer, in)
	case intents.StorageDeposit:
		e.emit(signer, hash, in)
		return s.StorageDeposit(signer, in)
	case intents.TokenDiff:
		return e.tokenDiff(signer, hash, in)
	case intents.SetAuthByPredecessorID:
		e.emit(signer, hash, in)
		_, err := s.SetAuthByPredecessorID(signer, in.Enabled)
		return err
	case intents.AuthCall:
		e.emit(signer, hash, in)
		return s.AuthCall(signer, in)
	default:
		return fmt.Errorf("%w: %T", intents.ErrUnknownIntent, intent)
	}
}

func (e *Engine) transfer(signer types.AccountID, hash types.Hash, t intents.Transfer) error {
	if t.ReceiverID == signer || len(t.Tokens) == 0 {
		return state.ErrInvalidIntent
	}
	if err := t.ReceiverID.Validate(); err != nil {
		return err
	}
	e.emit(signer, hash, t)
	if err := e.state.InternalSubBalance(signer, state.Tokens(t.Tokens)); err != nil {
		return err
	}
	return e.state.InternalAddBalance(t.ReceiverID, state.Tokens(t.Tokens))
}

func (e *Engine) tokenDiff(signer types.AccountID, hash types.Hash, d intents.TokenDiff) error {
	if len(d.Diff) == 0 {
		return state.ErrInvalidIntent
	}
	fee := e.state.Fee()
	collected := amounts.NewInMemory[types.TokenID, types.U128]()
	for _, token := range intents.SortedTokens(d.Diff) {
		delta := d.Diff[token]
		if delta.IsZero() {
			return state.ErrInvalidIntent
		}
		if err := token.Validate(); err != nil {
			return err
		}
		e.diffs = append(e.diffs, amounts.Pair[types.TokenID, types.I128]{Key: token, Value: delta})
		if delta.Sign() < 0 {
			amount := delta.Abs()
			if _, ok := collected.Add(token, TokenFee(token, amount, fee).FeeCeil(amount)); !ok {
				return state.ErrBalanceOverflow
			}
		}
	}

	fees := collected.ToMap()
	e.inspector.OnEvent(Event{
		Kind:          d.Kind(),
		AccountID:     signer,
		IntentHash:    hash,
		Intent:        d,
		FeesCollected: fees,
	})

	if err := state.InternalApplyDeltas(e.state, signer, state.Tokens(d.Diff)); err != nil {
		return err
	}
	if len(fees) == 0 {
		return nil
	}
	return e.state.InternalAddBalance(e.state.FeeCollector(), state.Tokens(fees))
}
