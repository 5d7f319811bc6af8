// Package kvstore defines the persisted key-value store used for
// learner-local state: subgoal progress per user and language, and unsaved
// chat history for sessions that were never saved to the backend.
//
// The original system kept this state in ambient browser storage; here it is
// an explicit injected dependency so the progress and session layers can be
// tested against the in-memory implementation. Three backends ship with
// Parlance:
//
//   - memory:   map-backed, for tests and ephemeral deployments.
//   - sqlite:   a local single-file store, the default for self-hosted use.
//   - postgres: for multi-instance server deployments.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a flat binary key-value store. Keys are opaque strings; callers
// namespace them (e.g. "progress/<user>/<language>").
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix, in unspecified order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases the store's resources. Safe to call more than once.
	Close() error
}
