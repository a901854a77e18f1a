// Package kv implements the engine's key-value substrate: an in-memory map
// with optional per-entry TTL and optional best-effort durable backing.
//
// Durable records never carry TTL metadata; anything hydrated from the
// backend after a restart is treated as permanent until overwritten.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrNotFound indicates a requested durable record is missing.
var ErrNotFound = errors.New("record not found")

// Backend is the durable persistence port for the store.
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	// Get returns the raw record bytes or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// SetOptions controls how one entry is written.
type SetOptions struct {
	// TTL expires the in-memory entry after the given duration. Zero means
	// no expiry. TTL is never recorded durably.
	TTL time.Duration
	// Persist writes the entry through to the durable backend,
	// fire-and-forget.
	Persist bool
}

type entry struct {
	payload   []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is an in-memory key-value store with optional durable backing.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	backend Backend
	clock   func() time.Time

	// persistWait tracks in-flight durable writes so tests can drain them.
	persistWait sync.WaitGroup
}

// NewStore creates a store. backend may be nil for a purely in-memory store.
func NewStore(backend Backend) *Store {
	return &Store{
		entries: make(map[string]entry),
		backend: backend,
		clock:   time.Now,
	}
}

// Set writes value to memory immediately and, when opts.Persist is set,
// schedules a durable write. The durable write is best-effort: a crash
// between the memory write and the backend write loses the durable copy.
func (s *Store) Set(ctx context.Context, key string, value any, opts SetOptions) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %q: %w", key, err)
	}

	s.mu.Lock()
	s.entries[key] = s.newEntry(payload, opts.TTL)
	s.mu.Unlock()

	if opts.Persist && s.backend != nil {
		s.persistAsync(ctx, key, payload)
	}
	return nil
}

// SetIfAbsent writes the entry only when no live copy exists in memory or,
// when opts.Persist is set, in the durable backend. It reports whether this
// call claimed the key. The check and the write are atomic with respect to
// other Set/SetIfAbsent/Get calls.
func (s *Store) SetIfAbsent(ctx context.Context, key string, value any, opts SetOptions) (bool, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal value for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.entries[key]; ok {
		if !existing.expired(now) {
			return false, nil
		}
		delete(s.entries, key)
	}
	if opts.Persist && s.backend != nil {
		durable, err := s.backend.Get(ctx, key)
		switch {
		case err == nil:
			// A durable copy survives restarts; cache it and lose the claim.
			s.entries[key] = entry{payload: durable}
			return false, nil
		case errors.Is(err, ErrNotFound):
		default:
			// Unreadable durable state counts as absent, same as Get.
			log.Printf("kv: read durable %q: %v", key, err)
		}
	}

	s.entries[key] = s.newEntry(payload, opts.TTL)
	if opts.Persist && s.backend != nil {
		s.persistAsync(ctx, key, payload)
	}
	return true, nil
}

// Get loads the value for key into out and reports whether it was found.
//
// A memory hit returns immediately; expired entries are evicted on read and
// count as misses. On a miss with persist set, Get hydrates from the durable
// backend and caches the result with no TTL. Corrupt or unreadable durable
// records are logged and treated as misses, never as errors.
func (s *Store) Get(ctx context.Context, key string, out any, persist bool) (bool, error) {
	s.mu.Lock()
	stored, ok := s.entries[key]
	if ok && stored.expired(s.now()) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		if !persist || s.backend == nil {
			return false, nil
		}
		payload, err := s.backend.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Printf("kv: read durable %q: %v", key, err)
			}
			return false, nil
		}
		if out != nil {
			if err := json.Unmarshal(payload, out); err != nil {
				log.Printf("kv: corrupt durable %q: %v", key, err)
				return false, nil
			}
		}
		// Concurrent hydrations race benignly; last memory write wins.
		s.mu.Lock()
		s.entries[key] = entry{payload: payload}
		s.mu.Unlock()
		return true, nil
	}

	if out != nil {
		if err := json.Unmarshal(stored.payload, out); err != nil {
			return false, fmt.Errorf("unmarshal %q: %w", key, err)
		}
	}
	return true, nil
}

// Has reports whether a live entry exists for key without decoding it.
func (s *Store) Has(ctx context.Context, key string, persist bool) (bool, error) {
	return s.Get(ctx, key, nil, persist)
}

// Delete removes the in-memory entry. Durable copies are left in place; they
// are only overwritten by a later Set or ignored until the next hydration.
func (s *Store) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// DropMemory clears every in-memory entry, simulating a process restart
// while keeping durable state intact. Intended for tests.
func (s *Store) DropMemory() {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
}

// Flush blocks until pending durable writes complete.
func (s *Store) Flush() {
	s.persistWait.Wait()
}

func (s *Store) newEntry(payload []byte, ttl time.Duration) entry {
	stored := entry{payload: payload}
	if ttl > 0 {
		stored.expiresAt = s.now().Add(ttl)
	}
	return stored
}

func (s *Store) persistAsync(ctx context.Context, key string, payload []byte) {
	persistCtx := context.WithoutCancel(ctx)
	s.persistWait.Add(1)
	go func() {
		defer s.persistWait.Done()
		if err := s.backend.Put(persistCtx, key, payload); err != nil {
			log.Printf("kv: write durable %q: %v", key, err)
		}
	}()
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock()
}
