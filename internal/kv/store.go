package kv

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-intents/internal/storage"
)

// Codec converts values to and from their stored bytes.
type Codec[T any] struct {
	Encode func(T) []byte
	Decode func([]byte) (T, error)
}

// ErrorSink records the first storage error seen by a StoreMap. The map
// contracts have no error returns, so backend failures are reported out of
// band and checked by the owner before anything is committed.
type ErrorSink struct {
	err error
}

// Record keeps err if it is the first one.
func (s *ErrorSink) Record(err error) {
	if s.err == nil && err != nil {
		s.err = err
	}
}

// Err returns the first recorded error.
func (s *ErrorSink) Err() error {
	return s.err
}

// Reset clears the recorded error.
func (s *ErrorSink) Reset() {
	s.err = nil
}

// StoreMap is an IterableMap persisted in a storage.DB. Keys are encoded
// under the DB as-is, so callers usually pass a storage.PrefixDB.
type StoreMap[K comparable, V any] struct {
	db   storage.DB
	key  Codec[K]
	val  Codec[V]
	sink *ErrorSink
}

// NewStoreMap builds a StoreMap. sink may be shared by several maps.
func NewStoreMap[K comparable, V any](db storage.DB, key Codec[K], val Codec[V], sink *ErrorSink) *StoreMap[K, V] {
	return &StoreMap[K, V]{db: db, key: key, val: val, sink: sink}
}

func (s *StoreMap[K, V]) Get(k K) (V, bool) {
	var zero V
	raw, err := s.db.Get(s.key.Encode(k))
	if errors.Is(err, storage.ErrNotFound) {
		return zero, false
	}
	if err != nil {
		s.sink.Record(fmt.Errorf("get %v: %w", k, err))
		return zero, false
	}
	v, err := s.val.Decode(raw)
	if err != nil {
		s.sink.Record(fmt.Errorf("decode %v: %w", k, err))
		return zero, false
	}
	return v, true
}

func (s *StoreMap[K, V]) Insert(k K, v V) (V, bool) {
	prev, had := s.Get(k)
	if err := s.db.Put(s.key.Encode(k), s.val.Encode(v)); err != nil {
		s.sink.Record(fmt.Errorf("put %v: %w", k, err))
	}
	return prev, had
}

func (s *StoreMap[K, V]) Remove(k K) (V, bool) {
	prev, had := s.Get(k)
	if !had {
		return prev, false
	}
	if err := s.db.Delete(s.key.Encode(k)); err != nil {
		s.sink.Record(fmt.Errorf("delete %v: %w", k, err))
	}
	return prev, true
}

// Range iterates entries in stored key order. Undecodable entries are
// recorded in the sink and skipped.
func (s *StoreMap[K, V]) Range(fn func(k K, v V) bool) {
	stop := errors.New("stop")
	err := s.db.ForEach(nil, func(key, value []byte) error {
		k, err := s.key.Decode(key)
		if err != nil {
			s.sink.Record(fmt.Errorf("decode key %x: %w", key, err))
			return nil
		}
		v, err := s.val.Decode(value)
		if err != nil {
			s.sink.Record(fmt.Errorf("decode %v: %w", k, err))
			return nil
		}
		if !fn(k, v) {
			return stop
		}
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		s.sink.Record(fmt.Errorf("iterate: %w", err))
	}
}

func (s *StoreMap[K, V]) Len() int {
	n := 0
	s.Range(func(K, V) bool {
		n++
		return true
	})
	return n
}
