// Package settings is the persistence boundary: a namespaced key-value
// store holding JSON-serializable documents. The memory stores treat it
// as synchronous-enough to call inline on every mutation; there is no
// transaction or schema-versioning support, and concurrent writers from
// separate processes are last-write-wins.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound indicates the key has never been written.
var ErrNotFound = errors.New("settings: key not found")

// Store is a namespaced JSON key-value store.
type Store interface {
	// Get unmarshals the value stored under key into out.
	// Returns ErrNotFound if the key has never been written.
	Get(ctx context.Context, key string, out interface{}) error

	// Set marshals value as JSON and stores it under key, replacing any
	// previous value.
	Set(ctx context.Context, key string, value interface{}) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// MemStore is an in-memory Store used by tests and as a scratch backend.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, key string, out interface{}) error {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal %q: %w", key, err)
	}
	return nil
}

// Set implements Store.
func (s *MemStore) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }
