// Package settlement runs signed batches against the ledger, either for
// real or as a simulation that never touches storage.
package settlement

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-intents/internal/engine"
	"github.com/Klingon-tech/klingnet-intents/internal/fees"
	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/internal/ledger"
	"github.com/Klingon-tech/klingnet-intents/internal/log"
	"github.com/Klingon-tech/klingnet-intents/internal/metrics"
	"github.com/Klingon-tech/klingnet-intents/internal/payload"
	"github.com/Klingon-tech/klingnet-intents/internal/state"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Batch modes, used as metric labels.
const (
	ModeExecute     = "execute"
	ModeSimulate    = "simulate"
	ModePredecessor = "predecessor"
)

// ErrEmptyBatch is returned for a batch without payloads or intents.
var ErrEmptyBatch = errors.New("empty batch")

// Receipt describes a committed batch.
type Receipt struct {
	IntentsExecuted   []engine.ExecutedIntent `json:"intents_executed"`
	Events            []engine.Event          `json:"events"`
	WithdrawalsQueued int                     `json:"withdrawals_queued"`
}

// InvariantViolation explains why a simulated batch would be rejected by
// the batch invariant.
type InvariantViolation struct {
	// Error is "unmatched_deltas" or "overflow".
	Error           string                       `json:"error"`
	UnmatchedDeltas map[types.TokenID]types.I128 `json:"unmatched_deltas,omitempty"`
}

// Simulation is the outcome of a dry run.
type Simulation struct {
	IntentsExecuted   []engine.ExecutedIntent `json:"intents_executed"`
	MinDeadline       types.Deadline          `json:"min_deadline"`
	Events            []engine.Event          `json:"events"`
	InvariantViolated *InvariantViolation     `json:"invariant_violated,omitempty"`
	Fee               fees.Pips               `json:"fee"`
}

// Service settles batches. Writes are serialized by the ledger.
type Service struct {
	ledger  *ledger.Ledger
	logger  zerolog.Logger
	metrics *metrics.Settlement
}

// New creates a settlement service over l.
func New(l *ledger.Ledger) *Service {
	return &Service{ledger: l, logger: log.Settlement}
}

// SetMetrics attaches metrics collectors. A nil collector disables metrics.
func (s *Service) SetMetrics(m *metrics.Settlement) {
	s.metrics = m
}

// Ledger returns the underlying ledger.
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// Execute verifies and executes payloads as one atomic batch. Nothing is
// written unless every payload succeeds and the batch invariant holds.
func (s *Service) Execute(payloads []payload.Signed) (*Receipt, error) {
	if len(payloads) == 0 {
		return nil, ErrEmptyBatch
	}
	return s.commit(ModeExecute, func(eng *engine.Engine) error {
		return eng.ExecuteSigned(payloads...)
	})
}

// ExecuteAsPredecessor executes batch for signer without a signature, as
// if the signer called the ledger directly.
func (s *Service) ExecuteAsPredecessor(signer types.AccountID, batch intents.Intents) (*Receipt, error) {
	if err := signer.Validate(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	return s.commit(ModePredecessor, func(eng *engine.Engine) error {
		return eng.ExecuteAsPredecessor(signer, batch)
	})
}

func (s *Service) commit(mode string, run func(*engine.Engine) error) (*Receipt, error) {
	start := time.Now()
	rec := engine.NewRecorder()
	var queued int

	err := s.ledger.Update(func(tx *ledger.Tx) error {
		overlay := state.NewCached(tx)
		eng := engine.New(overlay, engine.Tee{&engine.LogInspector{Logger: log.Engine}, rec})
		if err := run(eng); err != nil {
			return err
		}
		if err := overlay.Commit(tx); err != nil {
			return fmt.Errorf("commit overlay: %w", err)
		}
		queued = tx.Queued()
		return nil
	})
	took := time.Since(start)
	s.metrics.ObserveBatch(mode, err, took)
	if err != nil {
		s.logger.Warn().Err(err).Str("mode", mode).Msg("Batch rejected")
		return nil, err
	}

	s.observe(mode, rec, queued)
	s.logger.Info().
		Str("mode", mode).
		Int("payloads", len(rec.IntentsExecuted)).
		Int("events", len(rec.Events)).
		Int("withdrawals", queued).
		Dur("took", took).
		Msg("Batch settled")

	return &Receipt{
		IntentsExecuted:   rec.IntentsExecuted,
		Events:            rec.Events,
		WithdrawalsQueued: queued,
	}, nil
}

func (s *Service) observe(mode string, rec *engine.Recorder, queued int) {
	if s.metrics == nil {
		return
	}
	if mode == ModeExecute {
		s.metrics.NoncesCommitted(len(rec.IntentsExecuted))
	}
	for _, ev := range rec.Events {
		s.metrics.IntentExecuted(string(ev.Kind))
		for token, amount := range ev.FeesCollected {
			s.metrics.FeesCollected(token.String(), amount.Float64())
		}
	}
	s.metrics.WithdrawalsQueued(queued)
}

// Simulate runs payloads against a throwaway overlay. Precondition and
// intent failures are returned as errors; a broken batch invariant is
// reported in the result instead.
func (s *Service) Simulate(payloads []payload.Signed) (*Simulation, error) {
	if len(payloads) == 0 {
		return nil, ErrEmptyBatch
	}
	start := time.Now()
	rec := engine.NewRecorder()
	sim := &Simulation{}

	err := s.ledger.View(func(tx *ledger.Tx) error {
		sim.Fee = tx.Fee()
		eng := engine.New(state.NewCached(tx), rec)
		err := eng.ExecuteSigned(payloads...)

		var unmatched *engine.InvariantViolatedError
		switch {
		case err == nil:
		case errors.As(err, &unmatched):
			sim.InvariantViolated = &InvariantViolation{
				Error:           "unmatched_deltas",
				UnmatchedDeltas: unmatched.Unmatched,
			}
		case errors.Is(err, engine.ErrInvariantViolated):
			sim.InvariantViolated = &InvariantViolation{Error: "overflow"}
		default:
			return err
		}
		return nil
	})
	s.metrics.ObserveBatch(ModeSimulate, err, time.Since(start))
	if err != nil {
		s.logger.Debug().Err(err).Msg("Simulation failed")
		return nil, err
	}

	sim.IntentsExecuted = rec.IntentsExecuted
	sim.MinDeadline = rec.MinDeadline
	sim.Events = rec.Events
	return sim, nil
}

// AccountInfo is a snapshot of one account.
type AccountInfo struct {
	Account                    types.AccountID              `json:"account"`
	Locked                     bool                         `json:"locked"`
	AuthByPredecessorIDEnabled bool                         `json:"auth_by_predecessor_id_enabled"`
	PublicKeys                 []types.PublicKey            `json:"public_keys"`
	Balances                   map[types.TokenID]types.U128 `json:"balances"`
}

// Account returns a snapshot of account.
func (s *Service) Account(account types.AccountID) (*AccountInfo, error) {
	info := &AccountInfo{Account: account}
	err := s.ledger.View(func(tx *ledger.Tx) error {
		info.Locked = tx.IsAccountLocked(account)
		info.AuthByPredecessorIDEnabled = tx.IsAuthByPredecessorIDEnabled(account)
		info.PublicKeys = slices.Collect(tx.PublicKeys(account))
		info.Balances = tx.Balances(account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// BalanceOf returns the balances of account for each token, in order.
func (s *Service) BalanceOf(account types.AccountID, tokens []types.TokenID) ([]types.U128, error) {
	out := make([]types.U128, len(tokens))
	err := s.ledger.View(func(tx *ledger.Tx) error {
		for i, t := range tokens {
			out[i] = tx.BalanceOf(account, t)
		}
		return nil
	})
	return out, err
}

// HasPublicKey reports whether pk may sign for account.
func (s *Service) HasPublicKey(account types.AccountID, pk types.PublicKey) (bool, error) {
	var ok bool
	err := s.ledger.View(func(tx *ledger.Tx) error {
		ok = tx.HasPublicKey(account, pk)
		return nil
	})
	return ok, err
}

// IsNonceUsed reports whether n was committed or invalidated for account.
func (s *Service) IsNonceUsed(account types.AccountID, n types.Nonce) (bool, error) {
	var used bool
	err := s.ledger.View(func(tx *ledger.Tx) error {
		used = tx.IsNonceUsed(account, n)
		return nil
	})
	return used, err
}

// ProtocolInfo describes the ledger parameters.
type ProtocolInfo struct {
	ledger.Params
	PendingWithdrawals int       `json:"pending_withdrawals"`
	Time               time.Time `json:"time"`
}

// Info returns the protocol parameters and outbox backlog.
func (s *Service) Info() (*ProtocolInfo, error) {
	pending, err := s.ledger.PendingWithdrawals(0)
	if err != nil {
		return nil, err
	}
	return &ProtocolInfo{
		Params:             s.ledger.Params(),
		PendingWithdrawals: len(pending),
		Time:               s.ledger.Now(),
	}, nil
}
