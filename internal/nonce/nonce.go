// Package nonce tracks used nonces on top of a bitmap.
//
// Nonces are permanent unless they carry the expirable prefix, in which
// case they embed a deadline and the word they live in can be pruned once
// that deadline has passed.
package nonce

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/Klingon-tech/klingnet-intents/internal/bitmap"
	"github.com/Klingon-tech/klingnet-intents/internal/kv"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

var (
	ErrNonceUsed    = errors.New("nonce was already used")
	ErrNonceExpired = errors.New("nonce has expired")
	// ErrTimestampRange is returned for deadlines that do not fit int64
	// unix nanoseconds (before 1678 or after 2262).
	ErrTimestampRange = errors.New("timestamp out of range")
)

var (
	minTimestamp = time.Unix(0, math.MinInt64)
	maxTimestamp = time.Unix(0, math.MaxInt64)
)

// ExpirablePrefix marks a nonce as expirable.
var ExpirablePrefix = [4]byte{0xdd, 0x50, 0xbc, 0x7c}

// ExpirableRandomSize is the length of the random tail of an expirable
// nonce. Its last byte is the bit position inside the bitmap word.
const ExpirableRandomSize = 20

// Expirable is a nonce that carries its own deadline.
//
// Layout: prefix[4] | deadline unix nanoseconds, int64 little-endian [8] | random[20].
// The little-endian timestamp is the borsh encoding, so nonces stay
// byte-compatible with other implementations of the protocol.
type Expirable struct {
	Deadline types.Deadline
	Random   [ExpirableRandomSize]byte
}

// NewExpirable builds an expirable nonce with a fresh random tail. The
// deadline must be representable in int64 unix nanoseconds.
func NewExpirable(deadline types.Deadline) (Expirable, error) {
	if deadline.Before(minTimestamp) || deadline.After(maxTimestamp) {
		return Expirable{}, fmt.Errorf("%w: %s", ErrTimestampRange, deadline.Format(time.RFC3339))
	}
	e := Expirable{Deadline: deadline}
	if _, err := rand.Read(e.Random[:]); err != nil {
		return Expirable{}, fmt.Errorf("random nonce: %w", err)
	}
	return e, nil
}

// Nonce packs e into its 256-bit form. Deadlines outside the int64
// nanosecond range are only rejected by NewExpirable.
func (e Expirable) Nonce() types.Nonce {
	var n types.Nonce
	copy(n[:4], ExpirablePrefix[:])
	binary.LittleEndian.PutUint64(n[4:12], uint64(e.Deadline.UnixNano()))
	copy(n[12:], e.Random[:])
	return n
}

// HasExpired reports whether now is past the nonce deadline.
func (e Expirable) HasExpired(now time.Time) bool {
	return e.Deadline.HasExpired(now)
}

// ParseExpirable decodes n if it carries the expirable prefix. Any other
// nonce is permanent and yields false.
func ParseExpirable(n types.Nonce) (Expirable, bool) {
	if !bytes.HasPrefix(n[:], ExpirablePrefix[:]) {
		return Expirable{}, false
	}
	nanos := int64(binary.LittleEndian.Uint64(n[4:12]))
	e := Expirable{Deadline: types.NewDeadline(time.Unix(0, nanos))}
	copy(e.Random[:], n[12:])
	return e, true
}

// Nonces is the set of used nonces of one account.
type Nonces struct {
	bits *bitmap.BitMap256
}

// New wraps a bitmap word map.
func New(words kv.Map[bitmap.Word, bitmap.Bits]) *Nonces {
	return &Nonces{bits: bitmap.New(words)}
}

// IsUsed reports whether n has been committed.
func (s *Nonces) IsUsed(n types.Nonce) bool {
	return s.bits.GetBit(n)
}

// Commit marks n as used. An expired expirable nonce is rejected and left
// unmarked.
func (s *Nonces) Commit(n types.Nonce, now time.Time) error {
	if e, ok := ParseExpirable(n); ok && e.HasExpired(now) {
		return ErrNonceExpired
	}
	if s.bits.SetBit(n) {
		return ErrNonceUsed
	}
	return nil
}

// ClearExpired drops the whole word holding n when n is an expirable nonce
// past its deadline. Permanent and live nonces are never cleared.
func (s *Nonces) ClearExpired(n types.Nonce, now time.Time) bool {
	e, ok := ParseExpirable(n)
	if !ok || !e.HasExpired(now) {
		return false
	}
	var w bitmap.Word
	copy(w[:], n[:bitmap.WordSize])
	return s.bits.ClearByPrefix(w)
}

// All iterates the used nonces when the backing map is iterable.
func (s *Nonces) All() iter.Seq[types.Nonce] {
	return func(yield func(types.Nonce) bool) {
		for n := range s.bits.All() {
			if !yield(types.Nonce(n)) {
				return
			}
		}
	}
}
