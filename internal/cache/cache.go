// Package cache is a plain key-value store for raw entities received from
// the API, keyed by entity kind and id.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

type entry struct {
	data     json.RawMessage
	storedAt time.Time
}

// Store is a process-wide entity cache. Entries are overwritten on update
// and removed on delete events; Sweep bounds memory by age.
type Store struct {
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

func New() *Store {
	return &Store{
		clock:   time.Now,
		entries: make(map[string]entry),
	}
}

func key(kind, id string) string {
	return kind + "/" + id
}

// Put stores or replaces an entity.
func (s *Store) Put(kind, id string, data json.RawMessage) {
	s.mu.Lock()
	s.entries[key(kind, id)] = entry{data: data, storedAt: s.clock()}
	s.mu.Unlock()
}

// Get returns the cached entity, if present.
func (s *Store) Get(kind, id string) (json.RawMessage, bool) {
	s.mu.RLock()
	e, ok := s.entries[key(kind, id)]
	s.mu.RUnlock()
	return e.data, ok
}

// Delete removes an entity.
func (s *Store) Delete(kind, id string) {
	s.mu.Lock()
	delete(s.entries, key(kind, id))
	s.mu.Unlock()
}

// Len reports the number of cached entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
}

// Sweep removes entries older than maxAge and reports how many were dropped.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := s.clock().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.storedAt.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}
