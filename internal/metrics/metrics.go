// Package metrics exposes Prometheus collectors for settlement activity.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intents"

// Settlement groups the collectors recorded by the settlement service and
// the withdrawal dispatcher.
type Settlement struct {
	batches     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	executed    *prometheus.CounterVec
	nonces      prometheus.Counter
	fees        *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
	outbox      prometheus.Gauge
}

var (
	settlementOnce sync.Once
	settlementReg  *Settlement
)

// SettlementMetrics returns the lazily registered settlement collectors.
func SettlementMetrics() *Settlement {
	settlementOnce.Do(func() {
		settlementReg = &Settlement{
			batches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "batches_total",
				Help:      "Batches handled, segmented by mode (execute, simulate, predecessor) and outcome.",
			}, []string{"mode", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "batch_duration_seconds",
				Help:      "Time spent executing a batch.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"mode"}),
			executed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "intents_executed_total",
				Help:      "Committed intents by kind.",
			}, []string{"kind"}),
			nonces: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "nonces_committed_total",
				Help:      "Signed payloads committed.",
			}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settlement",
				Name:      "fees_collected_total",
				Help:      "Fees credited to the fee collector, in token base units.",
			}, []string{"token"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "withdrawals_total",
				Help:      "Withdrawals queued and dispatched.",
			}, []string{"event"}),
			outbox: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "pending",
				Help:      "Withdrawals waiting for dispatch after the last sweep.",
			}),
		}
		prometheus.MustRegister(
			settlementReg.batches,
			settlementReg.duration,
			settlementReg.executed,
			settlementReg.nonces,
			settlementReg.fees,
			settlementReg.withdrawals,
			settlementReg.outbox,
		)
	})
	return settlementReg
}

// ObserveBatch records one batch.
func (m *Settlement) ObserveBatch(mode string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.batches.WithLabelValues(mode, outcome).Inc()
	m.duration.WithLabelValues(mode).Observe(d.Seconds())
}

// IntentExecuted counts one committed intent.
func (m *Settlement) IntentExecuted(kind string) {
	if m == nil {
		return
	}
	m.executed.WithLabelValues(kind).Inc()
}

// NoncesCommitted counts committed payloads.
func (m *Settlement) NoncesCommitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.nonces.Add(float64(n))
}

// FeesCollected adds a fee amount. Large amounts lose precision, which is
// acceptable for dashboards.
func (m *Settlement) FeesCollected(token string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.fees.WithLabelValues(token).Add(amount)
}

// WithdrawalsQueued counts withdrawals added to the outbox.
func (m *Settlement) WithdrawalsQueued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.withdrawals.WithLabelValues("queued").Add(float64(n))
}

// WithdrawalDispatched counts one withdrawal handed off and acknowledged.
func (m *Settlement) WithdrawalDispatched() {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues("dispatched").Inc()
}

// OutboxPending sets the outbox backlog.
func (m *Settlement) OutboxPending(n int) {
	if m == nil {
		return
	}
	m.outbox.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RPC groups the JSON-RPC request collectors.
type RPC struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	rpcOnce sync.Once
	rpcReg  *RPC
)

// RPCMetrics returns the lazily registered RPC collectors.
func RPCMetrics() *RPC {
	rpcOnce.Do(func() {
		rpcReg = &RPC{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests by method and error code (0 on success).",
			}, []string{"method", "code"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Time spent in a JSON-RPC handler.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcReg.requests, rpcReg.duration)
	})
	return rpcReg
}

// ObserveRequest records one handled request. Unknown methods are folded
// into a single label value.
func (m *RPC) ObserveRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if code == -32601 {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}
