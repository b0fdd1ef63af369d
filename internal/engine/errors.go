package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// Execution errors.
var (
	ErrDeadlineExpired          = errors.New("deadline has expired")
	ErrDeadlineGreaterThanNonce = errors.New("payload deadline is greater than nonce deadline")
	ErrInvalidSignature         = errors.New("invalid signature")
	ErrWrongVerifyingContract   = errors.New("wrong verifying contract")
	ErrInvariantViolated        = errors.New("invariant violated")
)

// InvariantViolatedError reports token diffs that did not net to zero
// across a batch. Unmatched is the closure that would have balanced them.
type InvariantViolatedError struct {
	Unmatched map[types.TokenID]types.I128
}

func (e *InvariantViolatedError) Error() string {
	var b strings.Builder
	b.WriteString("invariant violated: unmatched deltas")
	for _, token := range intents.SortedTokens(e.Unmatched) {
		fmt.Fprintf(&b, " %s=%s", token, e.Unmatched[token])
	}
	return b.String()
}

// Is matches ErrInvariantViolated.
func (e *InvariantViolatedError) Is(target error) bool {
	return target == ErrInvariantViolated
}
