package memory

import (
	"context"
	"sync"

	"github.com/mferrill/workherald/internal/workmeta"
)

// SettingsStore is an in-memory workmeta.SettingsStore.
type SettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSettingsStore constructs a SettingsStore.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string]string)}
}

// Get returns the value for a key or workmeta.ErrNotFound.
func (s *SettingsStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return "", workmeta.ErrNotFound
	}
	return value, nil
}

// Set stores a value under a key.
func (s *SettingsStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
