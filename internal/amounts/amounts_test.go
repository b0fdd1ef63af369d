package amounts

import (
	"testing"

	"github.com/Klingon-tech/klingnet-intents/internal/kv"
	"github.com/Klingon-tech/klingnet-intents/internal/storage"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

var (
	t1 = types.FungibleToken("ft1.near")
	t2 = types.FungibleToken("ft2.near")
)

func u(x uint64) types.U128 { return types.NewU128(x) }
func d(x int64) types.I128  { return types.NewI128(x) }

func delta(k types.TokenID, x int64) Pair[types.TokenID, types.I128] {
	return Pair[types.TokenID, types.I128]{Key: k, Value: d(x)}
}

func TestAmounts_AddSub(t *testing.T) {
	a := NewInMemory[types.TokenID, types.U128]()
	if !a.AmountFor(t1).IsZero() {
		t.Fatal("absent key should read as zero")
	}

	got, ok := a.Add(t1, u(5))
	if !ok || got.Cmp(u(5)) != 0 {
		t.Fatalf("Add = %s, %v", got, ok)
	}
	if _, ok := a.Sub(t1, u(6)); ok {
		t.Fatal("Sub below zero should fail")
	}
	if a.AmountFor(t1).Cmp(u(5)) != 0 {
		t.Fatal("failed Sub changed the ledger")
	}
	if _, ok := a.Add(t1, types.MaxU128()); ok {
		t.Fatal("overflowing Add should fail")
	}
	if a.AmountFor(t1).Cmp(u(5)) != 0 {
		t.Fatal("failed Add changed the ledger")
	}

	if _, ok := a.Sub(t1, u(5)); !ok {
		t.Fatal("Sub to zero should succeed")
	}
	if !a.IsEmpty() {
		t.Error("ledger should be empty once every entry is zero")
	}
}

func TestAmounts_ApplyDeltasConserve(t *testing.T) {
	tests := []struct {
		name   string
		deltas []Pair[types.TokenID, types.I128]
	}{
		{"zero", []Pair[types.TokenID, types.I128]{delta(t1, 0)}},
		{"plus minus", []Pair[types.TokenID, types.I128]{delta(t1, 1), delta(t1, -1)}},
		{"sums to zero", []Pair[types.TokenID, types.I128]{delta(t1, 10), delta(t1, 5), delta(t1, -7), delta(t1, -8)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewInMemory[types.TokenID, types.I128]()
			if !a.ApplyDeltas(Seq(tt.deltas...)) {
				t.Fatal("ApplyDeltas failed")
			}
			if !a.IsEmpty() {
				t.Errorf("ledger not empty: %v", a.ToMap())
			}
		})
	}
}

func TestAmounts_ApplyDeltasRollback(t *testing.T) {
	a := NewInMemory[types.TokenID, types.U128]()
	a.Add(t1, u(10))

	ok := a.ApplyDeltas(Seq(delta(t1, -4), delta(t2, 3), delta(t1, -7)))
	if ok {
		t.Fatal("ApplyDeltas should fail when t1 underflows")
	}
	if a.AmountFor(t1).Cmp(u(10)) != 0 {
		t.Errorf("t1 = %s after rollback, want 10", a.AmountFor(t1))
	}
	if !a.AmountFor(t2).IsZero() {
		t.Errorf("t2 = %s after rollback, want 0", a.AmountFor(t2))
	}
	if n := len(a.ToMap()); n != 1 {
		t.Errorf("ledger has %d entries after rollback, want 1", n)
	}
}

func TestAmounts_AddManyOverflowUnchanged(t *testing.T) {
	var sink kv.ErrorSink
	db := storage.NewMemory()
	a := New[types.TokenID, types.U128](kv.NewStoreMap(db, tokenCodec, u128Codec, &sink))
	a.Add(t1, types.MaxU128())
	before := db.Len()

	ok := a.AddMany(Seq(
		Pair[types.TokenID, types.U128]{Key: t2, Value: u(1)},
		Pair[types.TokenID, types.U128]{Key: t1, Value: u(1)},
	))
	if ok {
		t.Fatal("AddMany should fail on overflow")
	}
	if db.Len() != before {
		t.Errorf("store has %d keys, want %d", db.Len(), before)
	}
	if a.AmountFor(t1).Cmp(types.MaxU128()) != 0 || !a.AmountFor(t2).IsZero() {
		t.Error("failed AddMany changed balances")
	}
	if sink.Err() != nil {
		t.Fatalf("sink error: %v", sink.Err())
	}
}

func TestAmounts_SubMany(t *testing.T) {
	a := NewInMemory[types.TokenID, types.U128]()
	a.Add(t1, u(3))
	a.Add(t2, u(3))

	if !a.SubMany(Seq(
		Pair[types.TokenID, types.U128]{Key: t1, Value: u(3)},
		Pair[types.TokenID, types.U128]{Key: t2, Value: u(1)},
	)) {
		t.Fatal("SubMany failed")
	}
	m := a.ToMap()
	if len(m) != 1 || m[t2].Cmp(u(2)) != 0 {
		t.Errorf("ToMap() = %v", m)
	}

	c := a.Clone()
	c.Add(t1, u(1))
	if !a.AmountFor(t1).IsZero() {
		t.Error("Clone should not share state")
	}
}

var tokenCodec = kv.Codec[types.TokenID]{
	Encode: func(t types.TokenID) []byte { return []byte(t.String()) },
	Decode: func(b []byte) (types.TokenID, error) { return types.ParseTokenID(string(b)) },
}

var u128Codec = kv.Codec[types.U128]{
	Encode: func(v types.U128) []byte { return v.Bytes() },
	Decode: types.U128FromBytes,
}
