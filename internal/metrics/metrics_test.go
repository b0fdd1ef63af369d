package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSettlement_ObserveBatch(t *testing.T) {
	m := SettlementMetrics()
	if SettlementMetrics() != m {
		t.Fatal("SettlementMetrics should return the same collectors")
	}

	before := testutil.ToFloat64(m.batches.WithLabelValues("execute", "error"))
	m.ObserveBatch("execute", errors.New("rejected"), time.Millisecond)
	if got := testutil.ToFloat64(m.batches.WithLabelValues("execute", "error")); got != before+1 {
		t.Errorf("error batches = %v, want %v", got, before+1)
	}

	m.OutboxPending(3)
	if got := testutil.ToFloat64(m.outbox); got != 3 {
		t.Errorf("outbox = %v, want 3", got)
	}
}

func TestSettlement_IgnoresNonPositive(t *testing.T) {
	m := SettlementMetrics()
	before := testutil.ToFloat64(m.nonces)
	m.NoncesCommitted(0)
	m.NoncesCommitted(-2)
	if got := testutil.ToFloat64(m.nonces); got != before {
		t.Errorf("nonces = %v, want %v", got, before)
	}
}

func TestRPC_ObserveRequest(t *testing.T) {
	m := RPCMetrics()
	m.ObserveRequest("protocol_getInfo", 0, time.Millisecond)
	m.ObserveRequest("bogus_a", -32601, time.Millisecond)
	m.ObserveRequest("bogus_b", -32601, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("protocol_getInfo", "0")); got < 1 {
		t.Errorf("protocol_getInfo requests = %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("unknown", "-32601")); got < 2 {
		t.Errorf("unknown method requests = %v, want >= 2", got)
	}
}

func TestNilCollectors(t *testing.T) {
	var s *Settlement
	s.ObserveBatch("execute", nil, time.Second)
	s.IntentExecuted("transfer")
	s.WithdrawalDispatched()
	var r *RPC
	r.ObserveRequest("protocol_getInfo", 0, time.Second)
}
