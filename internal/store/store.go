// Package store persists the serialized token blob produced by the MixPlay client.
// Each backend keeps one opaque string per key and never inspects its contents.
package store

import (
	"context"
	"errors"
)

// DefaultKey names the token blob when the caller has no better key.
const DefaultKey = "auth.json"

// ErrNotFound is returned by Load when nothing is stored under the key.
var ErrNotFound = errors.New("store: blob not found")

// BlobStore saves and restores the token blob.
type BlobStore interface {
	// Load returns the blob stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) (string, error)
	// Save replaces the blob stored under key.
	Save(ctx context.Context, key, blob string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Location describes where key lives, for log output.
	Location(key string) string
}
