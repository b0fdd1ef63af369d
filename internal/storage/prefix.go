package storage

import "bytes"

// PrefixDB scopes a DB to the keys under a fixed prefix. The ledger opens
// one per account keyspace (nonces, balances).
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns inner scoped to prefix. Nesting collapses into a
// single PrefixDB over the innermost store.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	if p, ok := inner.(*PrefixDB); ok {
		return &PrefixDB{inner: p.inner, prefix: p.key(prefix)}
	}
	return &PrefixDB{inner: inner, prefix: bytes.Clone(prefix)}
}

// Prefix returns the absolute prefix on the underlying store.
func (p *PrefixDB) Prefix() []byte { return bytes.Clone(p.prefix) }

func (p *PrefixDB) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	return append(append(out, p.prefix...), k...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) { return p.inner.Get(p.key(key)) }

func (p *PrefixDB) Put(key, value []byte) error { return p.inner.Put(p.key(key), value) }

func (p *PrefixDB) Delete(key []byte) error { return p.inner.Delete(p.key(key)) }

func (p *PrefixDB) Has(key []byte) (bool, error) { return p.inner.Has(p.key(key)) }

// ForEach visits keys under prefix, relative to this PrefixDB.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(p.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// Close does nothing; the inner DB owns the resources.
func (p *PrefixDB) Close() error { return nil }

// NewBatch returns a batch on the inner DB when it supports batching, so a
// commit stays atomic across keyspaces sharing one store.
func (p *PrefixDB) NewBatch() Batch {
	if b, ok := p.inner.(Batcher); ok {
		return &prefixBatch{Batch: b.NewBatch(), db: p}
	}
	return &fallbackBatch{db: p}
}

type prefixBatch struct {
	Batch
	db *PrefixDB
}

func (b *prefixBatch) Put(key, value []byte) error { return b.Batch.Put(b.db.key(key), value) }

func (b *prefixBatch) Delete(key []byte) error { return b.Batch.Delete(b.db.key(key)) }
