// Package storage provides the durable key-value backends that hold the
// persisted chat session blob.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no value is stored under the key
var ErrNotFound = errors.New("storage: key not found")

// Persister is a small key-value store for opaque blobs. Implementations must
// be safe for concurrent use.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}
