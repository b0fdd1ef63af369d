package kv

// HashMap is an in-memory IterableMap. Iteration order is unspecified.
type HashMap[K comparable, V any] struct {
	m map[K]V
}

// NewHashMap returns an empty HashMap.
func NewHashMap[K comparable, V any]() *HashMap[K, V] {
	return &HashMap[K, V]{m: make(map[K]V)}
}

func (h *HashMap[K, V]) Get(k K) (V, bool) {
	v, ok := h.m[k]
	return v, ok
}

func (h *HashMap[K, V]) Insert(k K, v V) (V, bool) {
	prev, ok := h.m[k]
	h.m[k] = v
	return prev, ok
}

func (h *HashMap[K, V]) Remove(k K) (V, bool) {
	prev, ok := h.m[k]
	if ok {
		delete(h.m, k)
	}
	return prev, ok
}

func (h *HashMap[K, V]) Range(fn func(k K, v V) bool) {
	for k, v := range h.m {
		if !fn(k, v) {
			return
		}
	}
}

func (h *HashMap[K, V]) Len() int {
	return len(h.m)
}
