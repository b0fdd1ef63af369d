package engine

import (
	"iter"

	"github.com/Klingon-tech/klingnet-intents/internal/amounts"
	"github.com/Klingon-tech/klingnet-intents/internal/fees"
	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// TokenFee returns the fee rate that applies to moving amount of token.
// Non-fungible tokens and multi-token transfers of at most one unit are
// fee exempt.
func TokenFee(token types.TokenID, amount types.U128, fee fees.Pips) fees.Pips {
	switch token.Kind {
	case types.TokenKindNonFungible:
		return fees.Zero
	case types.TokenKindMulti:
		if amount.Cmp(types.NewU128(1)) <= 0 {
			return fees.Zero
		}
	}
	return fee
}

// SupplyDelta returns the effect of delta on total supply once the fee is
// taken. Negative deltas shrink by the fee, rounded in favor of the fee;
// positive deltas are unchanged.
func SupplyDelta(token types.TokenID, delta types.I128, fee fees.Pips) (types.I128, bool) {
	if delta.Sign() >= 0 {
		return delta, true
	}
	inv := TokenFee(token, delta.Abs(), fee).Invert()
	return delta.MulDivCeil(uint64(inv), uint64(fees.Max))
}

// ClosureSupplyDelta returns the delta whose supply effect cancels
// supplyDelta. A closing debit is grossed up by the fee, rounded down in
// magnitude so the closer is never over-charged.
func ClosureSupplyDelta(token types.TokenID, supplyDelta types.I128, fee fees.Pips) (types.I128, bool) {
	closure, ok := supplyDelta.CheckedNeg()
	if !ok {
		return types.I128{}, false
	}
	if closure.Sign() >= 0 {
		return closure, true
	}
	inv := TokenFee(token, supplyDelta.Abs(), fee).Invert()
	return closure.MulDivFloor(uint64(fees.Max), uint64(inv))
}

// ClosureDelta returns the delta that exactly matches delta after fees.
func ClosureDelta(token types.TokenID, delta types.I128, fee fees.Pips) (types.I128, bool) {
	supply, ok := SupplyDelta(token, delta, fee)
	if !ok {
		return types.I128{}, false
	}
	return ClosureSupplyDelta(token, supply, fee)
}

// ClosureDeltas sums the supply effect of deltas per token and returns the
// closure of every token that does not net to zero. deltas may span any
// number of diffs, so a ring of swaps is closed by a single diff.
func ClosureDeltas(deltas iter.Seq2[types.TokenID, types.I128], fee fees.Pips) (map[types.TokenID]types.I128, bool) {
	supply := amounts.NewInMemory[types.TokenID, types.I128]()
	for token, d := range deltas {
		s, ok := SupplyDelta(token, d, fee)
		if !ok {
			return nil, false
		}
		if _, ok := supply.Add(token, s); !ok {
			return nil, false
		}
	}

	totals := supply.ToMap()
	out := make(map[types.TokenID]types.I128, len(totals))
	for _, token := range intents.SortedTokens(totals) {
		c, ok := ClosureSupplyDelta(token, totals[token], fee)
		if !ok {
			return nil, false
		}
		if !c.IsZero() {
			out[token] = c
		}
	}
	return out, true
}
