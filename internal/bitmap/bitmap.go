// Package bitmap implements a sparse 256-bit addressable bitmap.
//
// A 256-bit key n is split into a 31-byte word (n[:31]) and a bit position
// (n[31]). Each stored word holds the 256 bits for all keys sharing that
// prefix. A word is stored only while at least one of its bits is set.
package bitmap

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/bits-and-blooms/bitset"

	"github.com/Klingon-tech/klingnet-intents/internal/kv"
)

// Sizes of the key parts.
const (
	KeySize  = 32
	WordSize = KeySize - 1
)

// Key addresses a single bit.
type Key = [KeySize]byte

// Word is the 248-bit prefix shared by 256 sibling keys.
type Word = [WordSize]byte

// Bits holds the 256 bits of one word. Bit i lives at Bits[i/8] & (1 << (i%8)).
type Bits = [32]byte

// BitMap256 is a bitmap over a word map.
type BitMap256 struct {
	words kv.Map[Word, Bits]
}

// New wraps a word map.
func New(words kv.Map[Word, Bits]) *BitMap256 {
	return &BitMap256{words: words}
}

func split(n Key) (Word, uint8) {
	var w Word
	copy(w[:], n[:WordSize])
	return w, n[WordSize]
}

func has(b *Bits, pos uint8) bool {
	return b[pos/8]&(1<<(pos%8)) != 0
}

// GetBit reports whether n is set.
func (m *BitMap256) GetBit(n Key) bool {
	w, pos := split(n)
	bits, ok := m.words.Get(w)
	if !ok {
		return false
	}
	return has(&bits, pos)
}

// SetBitTo sets n to v and returns the previous value.
func (m *BitMap256) SetBitTo(n Key, v bool) bool {
	w, pos := split(n)
	bits, _ := m.words.Get(w)
	old := has(&bits, pos)
	if old == v {
		return old
	}
	bits[pos/8] ^= 1 << (pos % 8)
	if bits == (Bits{}) {
		m.words.Remove(w)
	} else {
		m.words.Insert(w, bits)
	}
	return old
}

// SetBit sets n and returns the previous value.
func (m *BitMap256) SetBit(n Key) bool {
	return m.SetBitTo(n, true)
}

// ClearBit clears n and returns the previous value.
func (m *BitMap256) ClearBit(n Key) bool {
	return m.SetBitTo(n, false)
}

// ToggleBit flips n and returns the previous value.
func (m *BitMap256) ToggleBit(n Key) bool {
	return m.SetBitTo(n, !m.GetBit(n))
}

// ClearByPrefix drops a whole word. It reports whether the word existed.
func (m *BitMap256) ClearByPrefix(w Word) bool {
	_, ok := m.words.Remove(w)
	return ok
}

// All returns a lazy iterator over every set key. It requires the word map
// to be iterable and yields nothing otherwise. Each call starts over.
func (m *BitMap256) All() iter.Seq[Key] {
	return func(yield func(Key) bool) {
		words, ok := m.words.(kv.IterableMap[Word, Bits])
		if !ok {
			return
		}
		words.Range(func(w Word, bits Bits) bool {
			set := toBitSet(&bits)
			for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
				var n Key
				copy(n[:], w[:])
				n[WordSize] = byte(i)
				if !yield(n) {
					return false
				}
			}
			return true
		})
	}
}

// Iterable reports whether All can enumerate the bitmap.
func (m *BitMap256) Iterable() bool {
	_, ok := m.words.(kv.IterableMap[Word, Bits])
	return ok
}

func toBitSet(b *Bits) *bitset.BitSet {
	words := make([]uint64, 4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return bitset.From(words)
}

// WordCodec stores a word as its raw 31 bytes.
var WordCodec = kv.Codec[Word]{
	Encode: func(w Word) []byte { return append([]byte(nil), w[:]...) },
	Decode: func(b []byte) (Word, error) {
		var w Word
		if len(b) != WordSize {
			return w, fmt.Errorf("bitmap word must be %d bytes, got %d", WordSize, len(b))
		}
		copy(w[:], b)
		return w, nil
	},
}

// BitsCodec stores a word's bits as 32 raw bytes.
var BitsCodec = kv.Codec[Bits]{
	Encode: func(b Bits) []byte { return append([]byte(nil), b[:]...) },
	Decode: func(raw []byte) (Bits, error) {
		var b Bits
		if len(raw) != len(b) {
			return b, fmt.Errorf("bitmap bits must be %d bytes, got %d", len(b), len(raw))
		}
		copy(b[:], raw)
		return b, nil
	},
}
