// Package amounts implements a checked multi-token ledger.
//
// Every operation reads the current value (zero when absent), performs a
// checked step and stores the result. Failed steps leave the ledger
// untouched. Entries that reach zero are removed, so IsEmpty is exact.
package amounts

import (
	"iter"
	"maps"

	"github.com/Klingon-tech/klingnet-intents/internal/kv"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Value is an amount type with checked arithmetic, e.g. types.U128 for
// balances or types.I128 for deltas.
type Value[V any] interface {
	IsZero() bool
	CheckedAdd(V) (V, bool)
	CheckedSub(V) (V, bool)
	CheckedApplyDelta(types.I128) (V, bool)
}

// Pair is one (key, value) item of a batch operation.
type Pair[K any, T any] struct {
	Key   K
	Value T
}

// Seq adapts pairs into a sequence. Duplicate keys are kept in order.
func Seq[K any, T any](pairs ...Pair[K, T]) iter.Seq2[K, T] {
	return func(yield func(K, T) bool) {
		for _, p := range pairs {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// Amounts maps keys to checked amounts.
type Amounts[K comparable, V Value[V]] struct {
	m kv.Map[K, V]
}

// New wraps m. m should start without zero-valued entries.
func New[K comparable, V Value[V]](m kv.Map[K, V]) *Amounts[K, V] {
	return &Amounts[K, V]{m: m}
}

// NewInMemory returns an empty ledger backed by a hash map.
func NewInMemory[K comparable, V Value[V]]() *Amounts[K, V] {
	return New[K, V](kv.NewHashMap[K, V]())
}

// AmountFor returns the amount for k, zero when absent.
func (a *Amounts[K, V]) AmountFor(k K) V {
	return kv.GetOrDefault(a.m, k)
}

func (a *Amounts[K, V]) store(k K, v V) {
	if v.IsZero() {
		a.m.Remove(k)
		return
	}
	a.m.Insert(k, v)
}

// Add adds amount to k. It returns the new amount, or false on overflow.
func (a *Amounts[K, V]) Add(k K, amount V) (V, bool) {
	v, ok := a.AmountFor(k).CheckedAdd(amount)
	if !ok {
		return v, false
	}
	a.store(k, v)
	return v, true
}

// Sub subtracts amount from k. It returns the new amount, or false on
// underflow.
func (a *Amounts[K, V]) Sub(k K, amount V) (V, bool) {
	v, ok := a.AmountFor(k).CheckedSub(amount)
	if !ok {
		return v, false
	}
	a.store(k, v)
	return v, true
}

// ApplyDelta adds the signed delta d to k.
func (a *Amounts[K, V]) ApplyDelta(k K, d types.I128) (V, bool) {
	v, ok := a.AmountFor(k).CheckedApplyDelta(d)
	if !ok {
		return v, false
	}
	a.store(k, v)
	return v, true
}

// undo restores the entries touched by a failed batch.
type undo[K comparable, V any] struct {
	prev  map[K]V
	order []K
}

func (u *undo[K, V]) remember(k K, v V) {
	if _, seen := u.prev[k]; seen {
		return
	}
	u.prev[k] = v
	u.order = append(u.order, k)
}

// batch applies op to every item and rolls back all of them on the first
// failure.
func batch[K comparable, V Value[V], T any](a *Amounts[K, V], items iter.Seq2[K, T], op func(K, T) bool) bool {
	u := undo[K, V]{prev: make(map[K]V)}
	for k, t := range items {
		u.remember(k, a.AmountFor(k))
		if !op(k, t) {
			for _, key := range u.order {
				a.store(key, u.prev[key])
			}
			return false
		}
	}
	return true
}

// AddMany adds every item. Either all succeed or the ledger is unchanged.
func (a *Amounts[K, V]) AddMany(items iter.Seq2[K, V]) bool {
	return batch(a, items, func(k K, v V) bool {
		_, ok := a.Add(k, v)
		return ok
	})
}

// SubMany subtracts every item. Either all succeed or the ledger is unchanged.
func (a *Amounts[K, V]) SubMany(items iter.Seq2[K, V]) bool {
	return batch(a, items, func(k K, v V) bool {
		_, ok := a.Sub(k, v)
		return ok
	})
}

// ApplyDeltas applies every delta. Either all succeed or the ledger is
// unchanged.
func (a *Amounts[K, V]) ApplyDeltas(deltas iter.Seq2[K, types.I128]) bool {
	return batch(a, deltas, func(k K, d types.I128) bool {
		_, ok := a.ApplyDelta(k, d)
		return ok
	})
}

// Iterable reports whether the backing map supports enumeration.
func (a *Amounts[K, V]) Iterable() bool {
	_, ok := a.m.(kv.IterableMap[K, V])
	return ok
}

// All iterates the non-zero entries. It yields nothing when the backing
// map is not iterable.
func (a *Amounts[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m, ok := a.m.(kv.IterableMap[K, V])
		if !ok {
			return
		}
		m.Range(yield)
	}
}

// IsEmpty reports whether iteration yields no entries.
func (a *Amounts[K, V]) IsEmpty() bool {
	for range a.All() {
		return false
	}
	return true
}

// ToMap copies the entries into a Go map.
func (a *Amounts[K, V]) ToMap() map[K]V {
	return maps.Collect(a.All())
}

// Clone returns an in-memory copy.
func (a *Amounts[K, V]) Clone() *Amounts[K, V] {
	c := NewInMemory[K, V]()
	for k, v := range a.All() {
		c.m.Insert(k, v)
	}
	return c
}
