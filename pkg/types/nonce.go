package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// NonceSize is the length of a nonce in bytes.
const NonceSize = 32

// Nonce is an opaque 256-bit replay-protection value.
type Nonce [NonceSize]byte

// String returns the standard base64 encoding.
func (n Nonce) String() string {
	return base64.StdEncoding.EncodeToString(n[:])
}

// ParseNonce decodes a base64 nonce.
func ParseNonce(s string) (Nonce, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Nonce{}, fmt.Errorf("invalid nonce: %w", err)
	}
	if len(b) != NonceSize {
		return Nonce{}, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(b))
	}
	var n Nonce
	copy(n[:], b)
	return n, nil
}

// MarshalJSON encodes the nonce as base64.
func (n Nonce) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

// UnmarshalJSON decodes a base64 nonce.
func (n *Nonce) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseNonce(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Deadline is the instant after which a signed payload is no longer valid.
type Deadline struct {
	time.Time
}

// NewDeadline returns a deadline at t in UTC.
func NewDeadline(t time.Time) Deadline {
	return Deadline{Time: t.UTC()}
}

// DeadlineIn returns a deadline d from now.
func DeadlineIn(d time.Duration) Deadline {
	return NewDeadline(time.Now().Add(d))
}

// MaxDeadline is the far-future deadline used when nothing bounds a batch.
var MaxDeadline = Deadline{Time: time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)}

// HasExpired reports whether now is past the deadline.
func (d Deadline) HasExpired(now time.Time) bool {
	return now.After(d.Time)
}
