package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/internal/log"
	"github.com/Klingon-tech/klingnet-intents/internal/metrics"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Withdrawal is a debited withdrawal or auth call waiting to be handed to
// the outside world. Balances were taken when the intent executed.
type Withdrawal struct {
	Seq    uint64          `json:"seq"`
	Owner  types.AccountID `json:"owner"`
	Kind   intents.Kind    `json:"kind"`
	Intent json.RawMessage `json:"intent"`
	Queued time.Time       `json:"queued"`
}

// Decode returns the typed intent.
func (w Withdrawal) Decode() (intents.Intent, error) {
	return intents.Unmarshal(w.Intent)
}

// PendingWithdrawals returns up to limit queued withdrawals in queue order.
// A limit of zero returns all of them.
func (l *Ledger) PendingWithdrawals(limit int) ([]Withdrawal, error) {
	var (
		out  []Withdrawal
		stop = errors.New("stop")
	)
	err := l.db.ForEach(prefixOutbox, func(_, value []byte) error {
		var w Withdrawal
		if err := json.Unmarshal(value, &w); err != nil {
			return fmt.Errorf("decode withdrawal: %w", err)
		}
		out = append(out, w)
		if limit > 0 && len(out) >= limit {
			return stop
		}
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		return nil, err
	}
	return out, nil
}

// AckWithdrawal removes a dispatched withdrawal from the outbox.
func (l *Ledger) AckWithdrawal(seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Delete(outboxKey(seq))
}

// WithdrawHandler hands one withdrawal to the token contracts. Returning an
// error leaves it queued.
type WithdrawHandler func(ctx context.Context, w Withdrawal) error

// LogHandler returns a WithdrawHandler that only logs. It stands in where
// no bridge is configured.
func LogHandler(logger zerolog.Logger) WithdrawHandler {
	return func(_ context.Context, w Withdrawal) error {
		logger.Info().
			Uint64("seq", w.Seq).
			Str("owner", w.Owner.String()).
			Str("kind", string(w.Kind)).
			RawJSON("intent", w.Intent).
			Msg("Withdrawal dispatched")
		return nil
	}
}

// Dispatcher drains the outbox in queue order.
type Dispatcher struct {
	ledger   *Ledger
	handler  WithdrawHandler
	interval time.Duration
	batch    int
	logger   zerolog.Logger
	metrics  *metrics.Settlement
}

// NewDispatcher creates a dispatcher polling every interval. Commits that
// queue withdrawals wake it early.
func NewDispatcher(l *Ledger, handler WithdrawHandler, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		ledger:   l,
		handler:  handler,
		interval: interval,
		batch:    100,
		logger:   log.WithComponent("dispatch"),
	}
}

// SetMetrics attaches metrics collectors.
func (d *Dispatcher) SetMetrics(m *metrics.Settlement) {
	d.metrics = m
}

// Run dispatches until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.ledger.notify:
		}
		if _, err := d.DispatchPending(ctx); err != nil && ctx.Err() == nil {
			d.logger.Warn().Err(err).Msg("Dispatch sweep stopped")
		}
	}
}

// DispatchPending hands queued withdrawals to the handler, oldest first,
// and stops at the first failure so the queue order is kept.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	pending, err := d.ledger.PendingWithdrawals(d.batch)
	if err != nil {
		return 0, fmt.Errorf("load outbox: %w", err)
	}

	done := 0
	for _, w := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := d.handler(ctx, w); err != nil {
			d.metrics.OutboxPending(len(pending) - done)
			return done, fmt.Errorf("withdrawal %d: %w", w.Seq, err)
		}
		if err := d.ledger.AckWithdrawal(w.Seq); err != nil {
			return done, fmt.Errorf("ack withdrawal %d: %w", w.Seq, err)
		}
		d.metrics.WithdrawalDispatched()
		done++
	}
	d.metrics.OutboxPending(len(pending) - done)
	if done > 0 {
		d.logger.Debug().Int("count", done).Msg("Outbox drained")
	}
	return done, nil
}
