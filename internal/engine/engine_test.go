package engine

import (
	"errors"
	"iter"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-intents/internal/fees"
	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/internal/nonce"
	"github.com/Klingon-tech/klingnet-intents/internal/payload"
	"github.com/Klingon-tech/klingnet-intents/internal/state"
	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

var (
	usdc    = types.FungibleToken("usdc.near")
	btc     = types.FungibleToken("btc.near")
	testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

// baseView is a read-only view with fixed keys and balances.
type baseView struct {
	fee      fees.Pips
	keys     map[types.AccountID][]types.PublicKey
	balances map[types.AccountID]map[types.TokenID]types.U128
	locked   map[types.AccountID]bool
}

func newBaseView(fee fees.Pips) *baseView {
	return &baseView{
		fee:      fee,
		keys:     make(map[types.AccountID][]types.PublicKey),
		balances: make(map[types.AccountID]map[types.TokenID]types.U128),
		locked:   make(map[types.AccountID]bool),
	}
}

func (v *baseView) VerifyingContract() types.AccountID { return "intents.near" }
func (v *baseView) WNearID() types.AccountID           { return "wnear.near" }
func (v *baseView) Fee() fees.Pips                     { return v.fee }
func (v *baseView) FeeCollector() types.AccountID      { return "fees.near" }
func (v *baseView) Now() time.Time                     { return testNow }

func (v *baseView) HasPublicKey(id types.AccountID, pk types.PublicKey) bool {
	return slices.Contains(v.keys[id], pk)
}

func (v *baseView) PublicKeys(id types.AccountID) iter.Seq[types.PublicKey] {
	return slices.Values(v.keys[id])
}

func (v *baseView) IsNonceUsed(types.AccountID, types.Nonce) bool { return false }

func (v *baseView) BalanceOf(id types.AccountID, t types.TokenID) types.U128 {
	return v.balances[id][t]
}

func (v *baseView) IsAccountLocked(id types.AccountID) bool         { return v.locked[id] }
func (v *baseView) IsAuthByPredecessorIDEnabled(types.AccountID) bool { return true }

func (v *baseView) fund(id types.AccountID, t types.TokenID, amount uint64) {
	if v.balances[id] == nil {
		v.balances[id] = make(map[types.TokenID]types.U128)
	}
	v.balances[id][t] = types.NewU128(amount)
}

type signerFixture struct {
	id  types.AccountID
	key *crypto.Ed25519Key
}

func newSigner(t *testing.T, v *baseView, id types.AccountID) signerFixture {
	t.Helper()
	key, err := crypto.GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	v.keys[id] = append(v.keys[id], key.Key())
	return signerFixture{id: id, key: key}
}

func (s signerFixture) sign(t *testing.T, n byte, batch ...intents.Intent) payload.Signed {
	t.Helper()
	return s.signMessage(t, payload.Message{
		SignerID:          s.id,
		VerifyingContract: "intents.near",
		Deadline:          types.NewDeadline(testNow.Add(time.Hour)),
		Nonce:             types.Nonce{n},
		Intents:           batch,
	})
}

func (s signerFixture) signMessage(t *testing.T, msg payload.Message) payload.Signed {
	t.Helper()
	p, err := payload.Sign(payload.StandardRawEd25519, msg, s.key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return p
}

func amountsOf(tokens map[types.TokenID]uint64) map[types.TokenID]types.U128 {
	out := make(map[types.TokenID]types.U128, len(tokens))
	for t, a := range tokens {
		out[t] = types.NewU128(a)
	}
	return out
}

func diffOf(deltas map[types.TokenID]int64) intents.TokenDiff {
	d := intents.TokenDiff{Diff: make(map[types.TokenID]types.I128, len(deltas))}
	for t, v := range deltas {
		d.Diff[t] = types.NewI128(v)
	}
	return d
}

func wantBalance(t *testing.T, s state.StateView, id types.AccountID, token types.TokenID, want uint64) {
	t.Helper()
	if got := s.BalanceOf(id, token); got.Cmp(types.NewU128(want)) != 0 {
		t.Errorf("BalanceOf(%s, %s) = %s, want %d", id, token, got, want)
	}
}

func TestExecuteSigned_Transfer(t *testing.T) {
	view := newBaseView(fees.Zero)
	alice := newSigner(t, view, "alice.near")
	view.fund("alice.near", usdc, 100)

	overlay := state.NewCached(view)
	rec := NewRecorder()
	p := alice.sign(t, 1, intents.Transfer{ReceiverID: "bob.near", Tokens: amountsOf(map[types.TokenID]uint64{usdc: 30})})
	if err := New(overlay, rec).ExecuteSigned(p); err != nil {
		t.Fatalf("ExecuteSigned() error: %v", err)
	}

	wantBalance(t, overlay, "alice.near", usdc, 70)
	wantBalance(t, overlay, "bob.near", usdc, 30)
	if !overlay.IsNonceUsed("alice.near", types.Nonce{1}) {
		t.Error("nonce should be used")
	}
	if len(rec.IntentsExecuted) != 1 || rec.IntentsExecuted[0].IntentHash != p.Hash() {
		t.Errorf("IntentsExecuted = %+v", rec.IntentsExecuted)
	}
	if len(rec.Events) != 1 || rec.Events[0].Kind != intents.KindTransfer {
		t.Errorf("Events = %+v", rec.Events)
	}
	if !rec.MinDeadline.Equal(testNow.Add(time.Hour)) {
		t.Errorf("MinDeadline = %v", rec.MinDeadline)
	}
	// The view is never written.
	wantBalance(t, view, "alice.near", usdc, 100)
}

func TestExecuteSigned_Swap(t *testing.T) {
	view := newBaseView(fees.OnePercent)
	alice := newSigner(t, view, "alice.near")
	bob := newSigner(t, view, "bob.near")
	view.fund("alice.near", usdc, 1000)
	view.fund("bob.near", btc, 1000)

	overlay := state.NewCached(view)
	rec := NewRecorder()
	err := New(overlay, rec).ExecuteSigned(
		alice.sign(t, 1, diffOf(map[types.TokenID]int64{usdc: -1000, btc: 990})),
		bob.sign(t, 1, diffOf(map[types.TokenID]int64{btc: -1000, usdc: 990})),
	)
	if err != nil {
		t.Fatalf("ExecuteSigned() error: %v", err)
	}

	wantBalance(t, overlay, "alice.near", usdc, 0)
	wantBalance(t, overlay, "alice.near", btc, 990)
	wantBalance(t, overlay, "bob.near", btc, 0)
	wantBalance(t, overlay, "bob.near", usdc, 990)
	wantBalance(t, overlay, "fees.near", usdc, 10)
	wantBalance(t, overlay, "fees.near", btc, 10)

	if len(rec.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(rec.Events))
	}
	if got := rec.Events[0].FeesCollected[usdc]; got.Cmp(types.NewU128(10)) != 0 {
		t.Errorf("fees collected = %s, want 10", got)
	}
}

func TestExecuteSigned_Unmatched(t *testing.T) {
	view := newBaseView(fees.Zero)
	alice := newSigner(t, view, "alice.near")
	view.fund("alice.near", usdc, 1000)

	err := New(state.NewCached(view), NewRecorder()).ExecuteSigned(
		alice.sign(t, 1, diffOf(map[types.TokenID]int64{usdc: -100, btc: 50})),
	)
	if !errors.Is(err, ErrInvariantViolated) {
		t.Fatalf("ExecuteSigned() error = %v, want ErrInvariantViolated", err)
	}
	var inv *InvariantViolatedError
	if !errors.As(err, &inv) {
		t.Fatalf("error %T is not *InvariantViolatedError", err)
	}
	want := map[types.TokenID]types.I128{usdc: types.NewI128(100), btc: types.NewI128(-50)}
	if !maps.EqualFunc(inv.Unmatched, want, func(a, b types.I128) bool { return a.Cmp(b) == 0 }) {
		t.Errorf("Unmatched = %v, want %v", inv.Unmatched, want)
	}
}

func TestExecuteSigned_Preconditions(t *testing.T) {
	view := newBaseView(fees.Zero)
	alice := newSigner(t, view, "alice.near")
	view.fund("alice.near", usdc, 100)
	transfer := intents.Transfer{ReceiverID: "bob.near", Tokens: amountsOf(map[types.TokenID]uint64{usdc: 1})}

	stranger, err := crypto.GenerateEd25519Key()
	if err != nil {
		t.Fatal(err)
	}
	base := payload.Message{
		SignerID:          "alice.near",
		VerifyingContract: "intents.near",
		Deadline:          types.NewDeadline(testNow.Add(time.Hour)),
		Nonce:             types.Nonce{9},
		Intents:           intents.Intents{transfer},
	}

	shortNonce := nonce.Expirable{Deadline: types.NewDeadline(testNow.Add(time.Minute))}.Nonce()

	tests := []struct {
		name    string
		payload func() payload.Signed
		wantErr error
	}{
		{"wrong contract", func() payload.Signed {
			m := base
			m.VerifyingContract = "other.near"
			return alice.signMessage(t, m)
		}, ErrWrongVerifyingContract},
		{"deadline expired", func() payload.Signed {
			m := base
			m.Deadline = types.NewDeadline(testNow.Add(-time.Second))
			return alice.signMessage(t, m)
		}, ErrDeadlineExpired},
		{"unknown key", func() payload.Signed {
			p, err := payload.Sign(payload.StandardRawEd25519, base, stranger)
			if err != nil {
				t.Fatal(err)
			}
			return p
		}, state.ErrPublicKeyNotExist},
		{"tampered", func() payload.Signed {
			p := alice.signMessage(t, base)
			p.Payload += " "
			return p
		}, ErrInvalidSignature},
		{"deadline past nonce", func() payload.Signed {
			m := base
			m.Nonce = shortNonce
			return alice.signMessage(t, m)
		}, ErrDeadlineGreaterThanNonce},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			overlay := state.NewCached(view)
			err := New(overlay, NewRecorder()).ExecuteSigned(tt.payload())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExecuteSigned() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExecuteSigned_Replay(t *testing.T) {
	view := newBaseView(fees.Zero)
	alice := newSigner(t, view, "alice.near")
	view.fund("alice.near", usdc, 100)

	overlay := state.NewCached(view)
	p := alice.sign(t, 1, intents.Transfer{ReceiverID: "bob.near", Tokens: amountsOf(map[types.TokenID]uint64{usdc: 1})})
	if err := New(overlay, NewRecorder()).ExecuteSigned(p); err != nil {
		t.Fatalf("first ExecuteSigned() error: %v", err)
	}
	if err := New(overlay, NewRecorder()).ExecuteSigned(p); !errors.Is(err, nonce.ErrNonceUsed) {
		t.Errorf("replay error = %v, want ErrNonceUsed", err)
	}
}

func TestExecuteSigned_IntentErrors(t *testing.T) {
	view := newBaseView(fees.Zero)
	alice := newSigner(t, view, "alice.near")
	view.fund("alice.near", usdc, 100)

	tests := []struct {
		name    string
		intent  intents.Intent
		wantErr error
	}{
		{"self transfer", intents.Transfer{ReceiverID: "alice.near", Tokens: amountsOf(map[types.TokenID]uint64{usdc: 1})}, state.ErrInvalidIntent},
		{"empty transfer", intents.Transfer{ReceiverID: "bob.near"}, state.ErrInvalidIntent},
		{"zero amount", intents.Transfer{ReceiverID: "bob.near", Tokens: amountsOf(map[types.TokenID]uint64{usdc: 0})}, state.ErrInvalidIntent},
		{"insufficient", intents.Transfer{ReceiverID: "bob.near", Tokens: amountsOf(map[types.TokenID]uint64{usdc: 101})}, state.ErrBalanceOverflow},
		{"empty diff", intents.TokenDiff{}, state.ErrInvalidIntent},
		{"zero delta", diffOf(map[types.TokenID]int64{usdc: 0}), state.ErrInvalidIntent},
		{"duplicate key", intents.AddPublicKey{PublicKey: alice.key.Key()}, state.ErrPublicKeyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(state.NewCached(view), NewRecorder()).ExecuteSigned(alice.sign(t, 2, tt.intent))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ExecuteSigned() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExecuteSigned_LockedAccount(t *testing.T) {
	view := newBaseView(fees.Zero)
	alice := newSigner(t, view, "alice.near")
	bob := newSigner(t, view, "bob.near")
	view.fund("bob.near", usdc, 10)
	view.locked["alice.near"] = true

	overlay := state.NewCached(view)
	err := New(overlay, NewRecorder()).ExecuteSigned(alice.sign(t, 1, intents.InvalidateNonces{}))
	if !errors.Is(err, state.ErrAccountLocked) {
		t.Errorf("locked signer error = %v, want ErrAccountLocked", err)
	}

	// Credits to a locked account still go through.
	err = New(overlay, NewRecorder()).ExecuteSigned(bob.sign(t, 1,
		intents.Transfer{ReceiverID: "alice.near", Tokens: amountsOf(map[types.TokenID]uint64{usdc: 10})}))
	if err != nil {
		t.Fatalf("transfer to locked account: %v", err)
	}
	wantBalance(t, overlay, "alice.near", usdc, 10)
}

func TestExecuteSigned_KeyRotation(t *testing.T) {
	view := newBaseView(fees.Zero)
	alice := newSigner(t, view, "alice.near")
	next, err := crypto.GenerateEd25519Key()
	if err != nil {
		t.Fatal(err)
	}

	overlay := state.NewCached(view)
	err = New(overlay, NewRecorder()).ExecuteSigned(alice.sign(t, 1,
		intents.AddPublicKey{PublicKey: next.Key()},
		intents.RemovePublicKey{PublicKey: alice.key.Key()},
	))
	if err != nil {
		t.Fatalf("ExecuteSigned() error: %v", err)
	}

	err = New(overlay, NewRecorder()).ExecuteSigned(alice.sign(t, 2, intents.InvalidateNonces{}))
	if !errors.Is(err, state.ErrPublicKeyNotExist) {
		t.Errorf("old key error = %v, want ErrPublicKeyNotExist", err)
	}
	rotated := signerFixture{id: "alice.near", key: next}
	if err := New(overlay, NewRecorder()).ExecuteSigned(rotated.sign(t, 3, intents.InvalidateNonces{Nonces: []types.Nonce{{4}}})); err != nil {
		t.Fatalf("new key: %v", err)
	}
	if !overlay.IsNonceUsed("alice.near", types.Nonce{4}) {
		t.Error("invalidated nonce should be used")
	}
}

func TestExecuteAsPredecessor(t *testing.T) {
	view := newBaseView(fees.Zero)
	view.fund("alice.near", usdc, 5)

	overlay := state.NewCached(view)
	rec := NewRecorder()
	batch := intents.Intents{
		intents.Transfer{ReceiverID: "bob.near", Tokens: amountsOf(map[types.TokenID]uint64{usdc: 5})},
		intents.SetAuthByPredecessorID{Enabled: false},
	}
	if err := New(overlay, rec).ExecuteAsPredecessor("alice.near", batch); err != nil {
		t.Fatalf("ExecuteAsPredecessor() error: %v", err)
	}
	wantBalance(t, overlay, "bob.near", usdc, 5)
	if len(rec.IntentsExecuted) != 1 || rec.IntentsExecuted[0].SignerID != "alice.near" {
		t.Errorf("IntentsExecuted = %+v", rec.IntentsExecuted)
	}

	err := New(overlay, rec).ExecuteAsPredecessor("alice.near", intents.Intents{intents.InvalidateNonces{}})
	if !errors.Is(err, state.ErrAuthByPredecessorIDDisabled) {
		t.Errorf("disabled error = %v, want ErrAuthByPredecessorIDDisabled", err)
	}
}
