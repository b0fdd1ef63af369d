package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/internal/nonce"
	"github.com/Klingon-tech/klingnet-intents/internal/payload"
	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
)

// parseCurve maps a --curve flag to a curve.
func parseCurve(s string) (types.Curve, error) {
	switch strings.ToLower(s) {
	case "ed25519", "":
		return types.CurveEd25519, nil
	case "secp256k1", "schnorr":
		return types.CurveSecp256k1, nil
	default:
		return 0, fmt.Errorf("unknown curve %q (want ed25519 or secp256k1)", s)
	}
}

// standardFor returns the signing standard for a curve.
func standardFor(c types.Curve) payload.Standard {
	if c == types.CurveSecp256k1 {
		return payload.StandardSchnorr
	}
	return payload.StandardRawEd25519
}

// parseTokenAmounts parses "token=amount" pairs.
func parseTokenAmounts(pairs []string) (map[types.TokenID]types.U128, error) {
	out := make(map[types.TokenID]types.U128, len(pairs))
	for _, p := range pairs {
		tok, amt, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%q: want <token>=<amount>", p)
		}
		id, err := types.ParseTokenID(tok)
		if err != nil {
			return nil, err
		}
		v, err := types.ParseU128(amt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tok, err)
		}
		if v.IsZero() {
			return nil, fmt.Errorf("%s: amount must be positive", tok)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("token %s listed twice", id)
		}
		out[id] = v
	}
	return out, nil
}

// parseTokenDeltas parses "token=±amount" pairs for a token diff.
func parseTokenDeltas(pairs []string) (map[types.TokenID]types.I128, error) {
	out := make(map[types.TokenID]types.I128, len(pairs))
	for _, p := range pairs {
		tok, amt, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%q: want <token>=<delta>", p)
		}
		id, err := types.ParseTokenID(tok)
		if err != nil {
			return nil, err
		}
		d, err := types.ParseI128(strings.TrimPrefix(amt, "+"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tok, err)
		}
		if d.IsZero() {
			return nil, fmt.Errorf("%s: delta must be non-zero", tok)
		}
		out[id] = d
	}
	return out, nil
}

// newMessage builds a message valid for ttl, using an expirable nonce that
// shares its deadline.
func newMessage(signer, verifyingContract types.AccountID, ttl time.Duration, batch intents.Intents) (payload.Message, error) {
	deadline := types.DeadlineIn(ttl)
	n, err := nonce.NewExpirable(deadline)
	if err != nil {
		return payload.Message{}, err
	}
	return payload.Message{
		SignerID:          signer,
		VerifyingContract: verifyingContract,
		Deadline:          deadline,
		Nonce:             n.Nonce(),
		Intents:           batch,
	}, nil
}

// signMessage signs msg with the standard matching the signer's curve.
func signMessage(msg payload.Message, signer crypto.Signer) (payload.Signed, error) {
	return payload.Sign(standardFor(signer.Key().Curve), msg, signer)
}

// readIntents loads a JSON array of intents from path ("-" for stdin).
func readIntents(path string) (intents.Intents, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	var batch intents.Intents
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode intents: %w", err)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("%s: no intents", path)
	}
	return batch, nil
}

// readSigned loads signed payloads from files holding either one payload
// or an array of payloads, preserving order.
func readSigned(paths []string) ([]payload.Signed, error) {
	var out []payload.Signed
	for _, path := range paths {
		data, err := readInput(path)
		if err != nil {
			return nil, err
		}
		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '[' {
			var many []payload.Signed
			if err := json.Unmarshal(data, &many); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			out = append(out, many...)
			continue
		}
		var one payload.Signed
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, one)
	}
	return out, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(os.Stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string     { return strings.Join(*l, ",") }
func (l *listFlag) Set(v string) error { *l = append(*l, v); return nil }
