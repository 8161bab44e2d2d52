// Package kv is the persistence adapter: opaque named blobs, one per record
// collection, behind a swappable backend. Callers own serialization and
// locking; the adapter only moves bytes.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for keys that were never set or were deleted.
var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
