// Package kv provides the durable key-value port used to persist simulator state.
package kv

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound no value is stored under the key.
var ErrNotFound = errors.New("key not found")

// Store durable key-value storage.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error
	// Update reads the value under key, passes it to fn and stores what fn returns, as one
	// step that no other writer of the same store (or, for durable backends, the same files)
	// can interleave with. An error from fn aborts the write and is returned unchanged.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// UpdateFunc computes the new value from the current one. found is false when the key is absent.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Dir        string
	SQLitePath string
}

// Open creates the store selected by opts.Backend. Empty backend means file.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		return NewFileStore(opts.Dir)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Errorf("unknown storage backend %q", opts.Backend)
	}
}
