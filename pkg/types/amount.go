package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// U128Size is the length of a big-endian encoded U128.
const U128Size = 16

// ErrInvalidAmount is returned when an amount cannot be parsed or is out of range.
var ErrInvalidAmount = errors.New("invalid amount")

var (
	maxU128 = *new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	maxI128 = *new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 127), uint256.NewInt(1))
	minI128 = *new(uint256.Int).Neg(new(uint256.Int).Lsh(uint256.NewInt(1), 127))
)

// U128 is an unsigned 128-bit amount. All arithmetic is checked.
type U128 struct {
	v uint256.Int
}

// NewU128 returns x as a U128.
func NewU128(x uint64) U128 {
	var u U128
	u.v.SetUint64(x)
	return u
}

// MaxU128 returns 2^128-1.
func MaxU128() U128 {
	return U128{v: maxU128}
}

// ParseU128 parses a base-10 string.
func ParseU128(s string) (U128, error) {
	var u U128
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return U128{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := u.v.SetFromDecimal(s); err != nil {
		return U128{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if u.v.Gt(&maxU128) {
		return U128{}, fmt.Errorf("%w: %q exceeds 128 bits", ErrInvalidAmount, s)
	}
	return u, nil
}

// U128FromBytes decodes a 16-byte big-endian value.
func U128FromBytes(b []byte) (U128, error) {
	if len(b) != U128Size {
		return U128{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidAmount, U128Size, len(b))
	}
	var u U128
	u.v.SetBytes(b)
	return u, nil
}

// Bytes returns the 16-byte big-endian encoding.
func (a U128) Bytes() []byte {
	b := a.v.Bytes32()
	out := make([]byte, U128Size)
	copy(out, b[32-U128Size:])
	return out
}

// IsZero reports whether a == 0.
func (a U128) IsZero() bool {
	return a.v.IsZero()
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a U128) Cmp(b U128) int {
	return a.v.Cmp(&b.v)
}

// Uint64 returns the low 64 bits and whether the value fits.
func (a U128) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

// Float64 returns an approximation of a, for metrics only.
func (a U128) Float64() float64 {
	return a.v.Float64()
}

// String returns the base-10 representation.
func (a U128) String() string {
	return a.v.Dec()
}

// CheckedAdd returns a+b, or false on overflow.
func (a U128) CheckedAdd(b U128) (U128, bool) {
	var r U128
	r.v.Add(&a.v, &b.v)
	if r.v.Gt(&maxU128) {
		return U128{}, false
	}
	return r, true
}

// CheckedSub returns a-b, or false on underflow.
func (a U128) CheckedSub(b U128) (U128, bool) {
	if a.v.Lt(&b.v) {
		return U128{}, false
	}
	var r U128
	r.v.Sub(&a.v, &b.v)
	return r, true
}

// CheckedApplyDelta returns a+d, or false if the result leaves [0, 2^128).
func (a U128) CheckedApplyDelta(d I128) (U128, bool) {
	if d.Sign() < 0 {
		return a.CheckedSub(d.Abs())
	}
	return a.CheckedAdd(d.Abs())
}

// MulDivCeil returns ceil(a*mul/div). It fails when div is zero or the
// result does not fit in 128 bits.
func (a U128) MulDivCeil(mul, div uint64) (U128, bool) {
	if div == 0 {
		return U128{}, false
	}
	q, rem := mulDivMod(&a.v, mul, div)
	if !rem.IsZero() {
		q.AddUint64(&q, 1)
	}
	if q.Gt(&maxU128) {
		return U128{}, false
	}
	return U128{v: q}, true
}

// MarshalJSON encodes the amount as a decimal string.
func (a U128) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a decimal string.
func (a *U128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: expected string", ErrInvalidAmount)
	}
	parsed, err := ParseU128(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler (used for map keys and TOML).
func (a U128) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *U128) UnmarshalText(text []byte) error {
	parsed, err := ParseU128(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// I128 is a signed 128-bit delta stored as a sign-extended 256-bit two's
// complement value. All arithmetic is checked against the 128-bit range.
type I128 struct {
	v uint256.Int
}

// NewI128 returns x as an I128.
func NewI128(x int64) I128 {
	var d I128
	if x < 0 {
		d.v.SetUint64(uint64(-(x + 1)) + 1)
		d.v.Neg(&d.v)
		return d
	}
	d.v.SetUint64(uint64(x))
	return d
}

// I128FromU128 converts u to a positive I128, or false if u > 2^127-1.
func I128FromU128(u U128) (I128, bool) {
	if u.v.Gt(&maxI128) {
		return I128{}, false
	}
	return I128{v: u.v}, true
}

// NegU128 returns -u, or false if u > 2^127.
func NegU128(u U128) (I128, bool) {
	var d I128
	d.v.Neg(&u.v)
	if !d.inRange() {
		return I128{}, false
	}
	return d, true
}

// ParseI128 parses a base-10 string with an optional leading '-'.
func ParseI128(s string) (I128, error) {
	neg := strings.HasPrefix(s, "-")
	mag, err := ParseU128(strings.TrimPrefix(s, "-"))
	if err != nil {
		return I128{}, err
	}
	var (
		d  I128
		ok bool
	)
	if neg {
		d, ok = NegU128(mag)
	} else {
		d, ok = I128FromU128(mag)
	}
	if !ok {
		return I128{}, fmt.Errorf("%w: %q exceeds signed 128 bits", ErrInvalidAmount, s)
	}
	return d, nil
}

func (d I128) inRange() bool {
	if d.v.Sign() < 0 {
		return !d.v.Slt(&minI128)
	}
	return !d.v.Gt(&maxI128)
}

// Sign returns -1, 0 or +1.
func (d I128) Sign() int {
	return d.v.Sign()
}

// IsZero reports whether d == 0.
func (d I128) IsZero() bool {
	return d.v.IsZero()
}

// Abs returns |d|. |MinInt128| = 2^127 always fits in a U128.
func (d I128) Abs() U128 {
	if d.v.Sign() < 0 {
		var u U128
		u.v.Neg(&d.v)
		return u
	}
	return U128{v: d.v}
}

// Cmp compares d and e as signed values.
func (d I128) Cmp(e I128) int {
	switch {
	case d.v.Slt(&e.v):
		return -1
	case d.v.Sgt(&e.v):
		return 1
	}
	return 0
}

// CheckedAdd returns d+e, or false on overflow.
func (d I128) CheckedAdd(e I128) (I128, bool) {
	var r I128
	r.v.Add(&d.v, &e.v)
	if !r.inRange() {
		return I128{}, false
	}
	return r, true
}

// CheckedSub returns d-e, or false on overflow.
func (d I128) CheckedSub(e I128) (I128, bool) {
	var r I128
	r.v.Sub(&d.v, &e.v)
	if !r.inRange() {
		return I128{}, false
	}
	return r, true
}

// CheckedNeg returns -d, or false for the minimum value.
func (d I128) CheckedNeg() (I128, bool) {
	var r I128
	r.v.Neg(&d.v)
	if !r.inRange() {
		return I128{}, false
	}
	return r, true
}

// MulDivCeil returns d*mul/div rounded towards positive infinity.
func (d I128) MulDivCeil(mul, div uint64) (I128, bool) {
	return d.mulDiv(mul, div, true)
}

// MulDivFloor returns d*mul/div rounded towards negative infinity. With a
// positive divisor this equals Euclidean division.
func (d I128) MulDivFloor(mul, div uint64) (I128, bool) {
	return d.mulDiv(mul, div, false)
}

func (d I128) mulDiv(mul, div uint64, ceil bool) (I128, bool) {
	if div == 0 {
		return I128{}, false
	}
	neg := d.Sign() < 0
	mag := d.Abs()
	q, rem := mulDivMod(&mag.v, mul, div)
	// Rounding away from zero happens for ceil on positives and floor on negatives.
	if !rem.IsZero() && ceil != neg {
		q.AddUint64(&q, 1)
	}
	var r I128
	if neg {
		r.v.Neg(&q)
	} else {
		r.v = q
	}
	if q.BitLen() > 128 || !r.inRange() {
		return I128{}, false
	}
	return r, true
}

// String returns the base-10 representation.
func (d I128) String() string {
	if d.Sign() < 0 {
		return "-" + d.Abs().String()
	}
	return d.Abs().String()
}

// MarshalJSON encodes the delta as a decimal string.
func (d I128) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a decimal string.
func (d *I128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: expected string", ErrInvalidAmount)
	}
	parsed, err := ParseI128(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// mulDivMod computes x*mul divmod div in 256 bits. x < 2^128 and
// mul < 2^64 so the product cannot wrap.
func mulDivMod(x *uint256.Int, mul, div uint64) (uint256.Int, uint256.Int) {
	var prod, q, r uint256.Int
	prod.Mul(x, uint256.NewInt(mul))
	q.DivMod(&prod, uint256.NewInt(div), &r)
	return q, r
}

// CheckedApplyDelta returns d+e, or false on overflow.
func (d I128) CheckedApplyDelta(e I128) (I128, bool) {
	return d.CheckedAdd(e)
}
