package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the blob store used for uploaded documents.
// Put is idempotent-safe: writing the same key twice overwrites in place.
type ObjectStorage interface {
	// Put stores an object under the given key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves an object by key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}
