// Package metadata persists small key/value items the client needs across
// restarts: the passphrase salt, the pending remote-deletion queue, and
// similar bookkeeping. Values are non-sensitive or already encrypted.
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns the value for a key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set upserts a key/value pair.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all pairs.
	List(ctx context.Context) (map[string][]byte, error)

	// Clear removes every pair. Used during sign-out cleanup.
	Clear(ctx context.Context) error
}
