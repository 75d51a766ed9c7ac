// Package slot defines the shared key-value store that all tabs of one
// profile read and write, together with its change-notification channel.
package slot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks storage failures (access denied, quota, broken
	// connection). Callers treat it as a fatal configuration problem.
	ErrUnavailable = errors.New("slot: unavailable")
	ErrClosed      = errors.New("slot: closed")
)

// Change describes a new value landing under Key. A nil OldValue means the
// key did not exist before; a nil NewValue means it was removed.
type Change struct {
	Key      string
	OldValue []byte
	NewValue []byte
}

// Slot is a synchronous key-value store shared by every tab of a profile.
// OnChange handlers run on a goroutine owned by the implementation, never
// inline inside Set.
type Slot interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	OnChange(fn func(Change)) (cancel func())
}

// UnavailableError wraps a backend error so that it matches ErrUnavailable.
type UnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("slot: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable wraps err for op on key; nil stays nil.
func Unavailable(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Key: key, Err: err}
}

// Same reports whether two optional values are identical, treating a
// missing value (nil) as distinct from an empty one.
func Same(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
