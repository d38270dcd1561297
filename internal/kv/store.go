// Package kv is the storage seam behind the session and reset-token
// registries. The in-memory implementation is the default; the redis one
// lets several processes share state.
package kv

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("kv: key not found")
	ErrExists   = errors.New("kv: key already exists")
)

// Store holds values of one type under string keys. Update and DeleteFunc
// are atomic with respect to other calls on the same store.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	// Insert fails with ErrExists when key is already present.
	Insert(ctx context.Context, key string, value V) error
	// Update applies fn to the current value and stores the result. It
	// returns ErrNotFound for a missing key, or fn's error unchanged.
	Update(ctx context.Context, key string, fn func(V) (V, error)) (V, error)
	Delete(ctx context.Context, key string) error
	// DeleteFunc removes every entry for which pred is true.
	DeleteFunc(ctx context.Context, pred func(key string, value V) bool) (int, error)
	// Range calls fn for each entry until fn returns false.
	Range(ctx context.Context, fn func(key string, value V) bool) error
}
