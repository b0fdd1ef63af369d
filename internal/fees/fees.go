// Package fees defines the fixed-point protocol fee rate.
package fees

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// ErrInvalidPips is returned for rates above Max.
var ErrInvalidPips = errors.New("fee rate out of range")

// Pips is a fee rate in millionths.
type Pips uint32

// Common rates.
const (
	Zero       Pips = 0
	OnePip     Pips = 1
	OneBip     Pips = 100
	OnePercent Pips = 10_000
	Max        Pips = 1_000_000
)

// FromPips validates p.
func FromPips(p uint32) (Pips, error) {
	if Pips(p) > Max {
		return 0, fmt.Errorf("%w: %d > %d", ErrInvalidPips, p, Max)
	}
	return Pips(p), nil
}

// AsPips returns the raw rate.
func (p Pips) AsPips() uint32 {
	return uint32(p)
}

// Invert returns Max - p.
func (p Pips) Invert() Pips {
	return Max - p
}

// Percent returns the rate as a percentage.
func (p Pips) Percent() float64 {
	return float64(p) / float64(OnePercent)
}

// FeeCeil returns ceil(amount * p / Max). The result never exceeds amount.
func (p Pips) FeeCeil(amount types.U128) types.U128 {
	fee, _ := amount.MulDivCeil(uint64(p), uint64(Max))
	return fee
}

// String formats the rate as a percentage.
func (p Pips) String() string {
	return strconv.FormatFloat(p.Percent(), 'f', -1, 64) + "%"
}

// UnmarshalJSON decodes and validates a raw pips number.
func (p *Pips) UnmarshalJSON(data []byte) error {
	var raw uint32
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := FromPips(raw)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
