package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyKey is returned for blank keys.
var ErrEmptyKey = errors.New("memory storage: empty key")

// Storage is an in-process key/value cache for demo/testing.
type Storage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStorage constructs an empty storage.
func NewStorage() *Storage {
	return &Storage{data: make(map[string][]byte)}
}

// Get returns a copy of the value, or nil when missing.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	if key == "" {
		return nil, ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	_ = ctx
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Remove deletes key.
func (s *Storage) Remove(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Clear deletes every key.
func (s *Storage) Clear(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}
