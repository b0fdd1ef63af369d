// Package kv defines the map contracts the ledger structures are built on.
//
// Map is the minimal get/insert/remove contract every backend provides.
// IterableMap adds full iteration, which only components that enumerate
// entries (public keys, balances) require.
package kv

// Map is a key/value store.
type Map[K comparable, V any] interface {
	Get(k K) (V, bool)
	// Insert stores v and returns the previous value, if any.
	Insert(k K, v V) (V, bool)
	// Remove deletes k and returns the removed value, if any.
	Remove(k K) (V, bool)
}

// IterableMap is a Map that can enumerate its entries.
type IterableMap[K comparable, V any] interface {
	Map[K, V]
	// Range calls fn for every entry until fn returns false.
	Range(fn func(k K, v V) bool)
	Len() int
}

// GetOrDefault returns the stored value or the zero value.
func GetOrDefault[K comparable, V any](m Map[K, V], k K) V {
	v, _ := m.Get(k)
	return v
}

// Keys collects the keys of m.
func Keys[K comparable, V any](m IterableMap[K, V]) []K {
	keys := make([]K, 0, m.Len())
	m.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}
