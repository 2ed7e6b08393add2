// Package memory implements an in-process kv Store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"ecocart/internal/kv/core"
)

// Store implements core.Store backed by process memory. Values are copied on
// the way in and out.
type Store struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

// New returns an empty in-memory store.
func New() *Store { return &Store{objs: make(map[string][]byte)} }

// Driver returns the kv driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Get returns a copy of the stored value.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, core.ErrInvalidKey
	}
	s.mu.RLock()
	v, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneBytes(v), nil
}

// Set replaces the value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return core.ErrInvalidKey
	}
	s.mu.Lock()
	s.objs[key] = cloneBytes(value)
	s.mu.Unlock()
	return nil
}

// Delete removes key if present.
func (s *Store) Delete(_ context.Context, key string) error {
	if key == "" {
		return core.ErrInvalidKey
	}
	s.mu.Lock()
	delete(s.objs, key)
	s.mu.Unlock()
	return nil
}

// Keys lists keys with prefix.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objs))
	for k := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func cloneBytes(in []byte) []byte {
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
