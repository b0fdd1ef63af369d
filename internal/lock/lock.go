// Package lock provides a persistent locked/unlocked wrapper.
//
// A locked value can still be read or mutated through the unchecked
// accessors. Checked accessors return false when the wrapper is in the
// wrong state, so every call site chooses explicitly between the two.
package lock

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Lock wraps a value with a locked flag.
type Lock[T any] struct {
	locked bool
	value  T
}

// New returns a wrapper in the given state.
func New[T any](locked bool, value T) *Lock[T] {
	return &Lock[T]{locked: locked, value: value}
}

// Unlocked wraps value unlocked.
func Unlocked[T any](value T) *Lock[T] {
	return New(false, value)
}

// Locked wraps value locked.
func Locked[T any](value T) *Lock[T] {
	return New(true, value)
}

// IsLocked reports the current state.
func (l *Lock[T]) IsLocked() bool {
	return l.locked
}

// AsInnerUnchecked returns the value regardless of the lock state.
func (l *Lock[T]) AsInnerUnchecked() *T {
	return &l.value
}

// Get returns the value only when unlocked.
func (l *Lock[T]) Get() (*T, bool) {
	if l.locked {
		return nil, false
	}
	return &l.value, true
}

// GetMaybeForced returns the value when unlocked, or always when force
// is set. Privileged debits go through here with force.
func (l *Lock[T]) GetMaybeForced(force bool) (*T, bool) {
	if force {
		return &l.value, true
	}
	return l.Get()
}

// AsLocked returns the value only when locked.
func (l *Lock[T]) AsLocked() (*T, bool) {
	if !l.locked {
		return nil, false
	}
	return &l.value, true
}

// AsLockedMaybeForced returns the value when locked, or always when force
// is set.
func (l *Lock[T]) AsLockedMaybeForced(force bool) (*T, bool) {
	if force {
		return &l.value, true
	}
	return l.AsLocked()
}

// Lock transitions to locked. It returns false if already locked.
func (l *Lock[T]) Lock() (*T, bool) {
	if l.locked {
		return nil, false
	}
	l.locked = true
	return &l.value, true
}

// Unlock transitions to unlocked. It returns false if already unlocked.
func (l *Lock[T]) Unlock() (*T, bool) {
	if !l.locked {
		return nil, false
	}
	l.locked = false
	return &l.value, true
}

// ForceLock locks unconditionally.
func (l *Lock[T]) ForceLock() *T {
	l.locked = true
	return &l.value
}

// ForceUnlock unlocks unconditionally.
func (l *Lock[T]) ForceUnlock() *T {
	l.locked = false
	return &l.value
}

// MarshalJSON flattens the value's fields and adds "locked": true when
// locked. T must encode as a JSON object.
func (l *Lock[T]) MarshalJSON() ([]byte, error) {
	inner, err := json.Marshal(l.value)
	if err != nil {
		return nil, err
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) < 2 || inner[0] != '{' {
		return nil, fmt.Errorf("lock: inner value must encode as an object, got %s", inner)
	}
	if !l.locked {
		return inner, nil
	}
	if bytes.Equal(inner, []byte("{}")) {
		return []byte(`{"locked":true}`), nil
	}
	out := make([]byte, 0, len(inner)+16)
	out = append(out, `{"locked":true,`...)
	out = append(out, inner[1:]...)
	return out, nil
}

// UnmarshalJSON reads the flag and decodes the remaining fields into the value.
func (l *Lock[T]) UnmarshalJSON(data []byte) error {
	var flag struct {
		Locked bool `json:"locked"`
	}
	if err := json.Unmarshal(data, &flag); err != nil {
		return err
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	l.locked = flag.Locked
	l.value = value
	return nil
}
