package cache

import (
	"sync"
	"time"
)

// TTLs per data category. Portfolio and single-symbol data reflect
// money at risk and must stay fresher than broad lists.
const (
	TTLIndices   = 30 * time.Second // Market indices
	TTLTrending  = 60 * time.Second // Trending lists
	TTLSearch    = 60 * time.Second // Search results
	TTLStock     = 15 * time.Second // Single-symbol detail
	TTLPortfolio = 15 * time.Second // Portfolio, holdings, transactions
)

// entry is a stored value with its expiry bookkeeping.
type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

// Store is a TTL-keyed in-memory cache. Concurrency discipline is
// last-write-wins per key. The zero value is not usable; use New.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key, or (nil, false) if absent or
// expired. An expired entry is evicted on the spot.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if s.now().Sub(e.storedAt) >= e.ttl {
		s.mu.Lock()
		// Re-check under the write lock; another writer may have
		// refreshed the key since the read.
		if cur, ok := s.entries[key]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

// Set stores value under key with the given TTL, replacing any
// previous entry.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{
		value:    value,
		storedAt: s.now(),
		ttl:      ttl,
	}
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]entry)
}

// Len returns the number of live entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}
