// Package memory provides a map-backed kvstore.Store for tests and
// ephemeral deployments. Values are copied on the way in and out, so callers
// cannot alias the store's internal state.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/parlancehq/parlance/pkg/kvstore"
)

// Store implements kvstore.Store in process memory.
type Store struct {
	mu sync.RWMutex
	m  map[string][]byte
}

var _ kvstore.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{m: make(map[string][]byte)}
}

// Get implements kvstore.Store.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Set implements kvstore.Store.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = cp
	return nil
}

// Delete implements kvstore.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// List implements kvstore.Store.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close implements kvstore.Store. It is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// Len returns the number of stored keys. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
