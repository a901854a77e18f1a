// Package memory provides an in-memory durable backend, used as the test
// double for the bbolt-backed store.
package memory

import (
	"context"
	"sync"

	"github.com/louisbranch/arcana.cards/internal/kv"
)

// Store is an in-memory kv.Backend.
type Store struct {
	mu      sync.Mutex
	records map[string][]byte
}

// NewStore creates an empty backend.
func NewStore() *Store {
	return &Store{records: make(map[string][]byte)}
}

// Put stores a copy of value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = append([]byte(nil), value...)
	return nil
}

// Get fetches the record bytes for key or kv.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), record...), nil
}

// Corrupt overwrites the record for key with bytes that are not valid JSON.
// Intended for tests exercising the corrupt-record miss path.
func (s *Store) Corrupt(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = []byte("{not json")
}

// Len reports how many records the backend holds.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
