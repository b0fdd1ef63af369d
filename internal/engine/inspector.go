package engine

import (
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Event is emitted for every executed intent.
type Event struct {
	Kind       intents.Kind    `json:"event"`
	AccountID  types.AccountID `json:"account_id"`
	IntentHash types.Hash      `json:"intent_hash"`
	Intent     intents.Intent  `json:"-"`
	// FeesCollected is set for token diffs that paid a fee.
	FeesCollected map[types.TokenID]types.U128 `json:"fees_collected,omitempty"`
}

// ExecutedIntent identifies one executed payload.
type ExecutedIntent struct {
	SignerID   types.AccountID `json:"signer_id"`
	IntentHash types.Hash      `json:"intent_hash"`
}

// Inspector observes execution. Hooks run synchronously, in order.
type Inspector interface {
	OnDeadline(deadline types.Deadline)
	OnEvent(ev Event)
	OnIntentExecuted(signer types.AccountID, hash types.Hash, nonce types.Nonce)
}

// LogInspector logs events as they happen. It is used for real execution,
// where the ledger is the record.
type LogInspector struct {
	Logger zerolog.Logger
}

func (l *LogInspector) OnDeadline(types.Deadline) {}

func (l *LogInspector) OnEvent(ev Event) {
	e := l.Logger.Debug().
		Str("event", string(ev.Kind)).
		Str("account", ev.AccountID.String()).
		Str("intent_hash", ev.IntentHash.String())
	if len(ev.FeesCollected) > 0 {
		d := zerolog.Dict()
		for _, token := range intents.SortedTokens(ev.FeesCollected) {
			d.Str(token.String(), ev.FeesCollected[token].String())
		}
		e = e.Dict("fees", d)
	}
	e.Msg("Intent event")
}

func (l *LogInspector) OnIntentExecuted(signer types.AccountID, hash types.Hash, n types.Nonce) {
	l.Logger.Info().
		Str("signer", signer.String()).
		Str("intent_hash", hash.String()).
		Str("nonce", n.String()).
		Msg("Intent executed")
}

// Recorder keeps everything it observes. Simulation returns its contents.
type Recorder struct {
	IntentsExecuted []ExecutedIntent
	MinDeadline     types.Deadline
	Events          []Event
}

// NewRecorder returns a recorder whose MinDeadline starts at the maximum.
func NewRecorder() *Recorder {
	return &Recorder{MinDeadline: types.MaxDeadline}
}

func (r *Recorder) OnDeadline(d types.Deadline) {
	if d.Before(r.MinDeadline.Time) {
		r.MinDeadline = d
	}
}

func (r *Recorder) OnEvent(ev Event) {
	r.Events = append(r.Events, ev)
}

func (r *Recorder) OnIntentExecuted(signer types.AccountID, hash types.Hash, _ types.Nonce) {
	r.IntentsExecuted = append(r.IntentsExecuted, ExecutedIntent{SignerID: signer, IntentHash: hash})
}

// Tee fans hooks out to several inspectors, in order.
type Tee []Inspector

func (t Tee) OnDeadline(d types.Deadline) {
	for _, in := range t {
		in.OnDeadline(d)
	}
}

func (t Tee) OnEvent(ev Event) {
	for _, in := range t {
		in.OnEvent(ev)
	}
}

func (t Tee) OnIntentExecuted(signer types.AccountID, hash types.Hash, n types.Nonce) {
	for _, in := range t {
		in.OnIntentExecuted(signer, hash, n)
	}
}
