// Package keylock provides per-key mutual exclusion.
//
// Operations on the same key are serialized; operations on disjoint keys run
// independently. Locks are created lazily on first use and never reclaimed,
// which is acceptable for the bounded key spaces here (one lock per user or
// trade slot).
package keylock

import "sync"

// Set is a collection of named mutexes.
type Set struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSet creates an empty lock set.
func NewSet() *Set {
	return &Set{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it if needed, and returns the
// matching unlock function.
func (s *Set) Lock(key string) (unlock func()) {
	lock := s.lockFor(key)
	lock.Lock()
	return lock.Unlock
}

// LockPair acquires the mutexes for two keys in a stable order so that
// concurrent pair operations never deadlock. Locking the same key twice
// acquires it once.
func (s *Set) LockPair(a, b string) (unlock func()) {
	if a == b {
		return s.Lock(a)
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	firstLock := s.lockFor(first)
	secondLock := s.lockFor(second)
	firstLock.Lock()
	secondLock.Lock()
	return func() {
		secondLock.Unlock()
		firstLock.Unlock()
	}
}

func (s *Set) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
