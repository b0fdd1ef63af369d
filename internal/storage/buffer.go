package storage

import (
	"fmt"
	"sort"
	"strings"
)

// BufferedDB stages writes in memory on top of an inner DB. Reads see the
// staged writes. Flush applies them through the inner DB's Batch when it
// has one, so a flush is atomic on badger and leveldb.
type BufferedDB struct {
	inner   DB
	pending map[string][]byte // nil value = delete
}

// NewBuffered wraps inner with an empty write buffer.
func NewBuffered(inner DB) *BufferedDB {
	return &BufferedDB{inner: inner, pending: make(map[string][]byte)}
}

// Get retrieves a value by key, preferring staged writes.
func (b *BufferedDB) Get(key []byte) ([]byte, error) {
	if v, ok := b.pending[string(key)]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return copyBytes(v), nil
	}
	return b.inner.Get(key)
}

// Put stages a write.
func (b *BufferedDB) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	b.pending[string(key)] = copyBytes(value)
	return nil
}

// Delete stages a delete.
func (b *BufferedDB) Delete(key []byte) error {
	b.pending[string(key)] = nil
	return nil
}

// Has checks staged writes, then the inner DB.
func (b *BufferedDB) Has(key []byte) (bool, error) {
	if v, ok := b.pending[string(key)]; ok {
		return v != nil, nil
	}
	return b.inner.Has(key)
}

// ForEach iterates the merged view of the inner DB and staged writes.
func (b *BufferedDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	err := b.inner.ForEach(prefix, func(key, value []byte) error {
		merged[string(key)] = copyBytes(value)
		return nil
	})
	if err != nil {
		return err
	}
	p := string(prefix)
	for k, v := range b.pending {
		if !strings.HasPrefix(k, p) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = copyBytes(v)
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of staged writes.
func (b *BufferedDB) Pending() int {
	return len(b.pending)
}

// Flush applies all staged writes to the inner DB and clears the buffer.
// On error the buffer is kept so the caller can decide to Discard it.
func (b *BufferedDB) Flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	var batch Batch
	if batcher, ok := b.inner.(Batcher); ok {
		batch = batcher.NewBatch()
	} else {
		batch = &fallbackBatch{db: b.inner}
	}
	keys := make([]string, 0, len(b.pending))
	for k := range b.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var err error
		if v := b.pending[k]; v == nil {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Put([]byte(k), v)
		}
		if err != nil {
			return fmt.Errorf("stage %q: %w", k, err)
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	b.Discard()
	return nil
}

// Discard drops all staged writes.
func (b *BufferedDB) Discard() {
	b.pending = make(map[string][]byte)
}

// Close is a no-op; the inner DB manages its own lifecycle.
func (b *BufferedDB) Close() error {
	return nil
}

// fallbackBatch buffers writes and applies them one by one when the
// target DB has no native batch support.
type fallbackBatch struct {
	db  DB
	ops []batchOp
}

func (fb *fallbackBatch) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	fb.ops = append(fb.ops, batchOp{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (fb *fallbackBatch) Delete(key []byte) error {
	fb.ops = append(fb.ops, batchOp{key: copyBytes(key)})
	return nil
}

func (fb *fallbackBatch) Commit() error {
	for _, op := range fb.ops {
		if op.value == nil {
			if err := fb.db.Delete(op.key); err != nil {
				return err
			}
		} else if err := fb.db.Put(op.key, op.value); err != nil {
			return err
		}
	}
	fb.ops = nil
	return nil
}
