package cors

import (
	"maps"
	"sync"
)

// Store holds origin capabilities. Implementations must never move a
// resolved entry back to Unknown or across to the other verdict.
type Store interface {
	// Get returns the capability of origin, Unknown if absent.
	Get(origin string) Capability
	// Set records a verdict for origin. It reports whether this call
	// resolved the entry; setting Unknown or overwriting a verdict is a no-op.
	Set(origin string, c Capability) bool
}

// MemoryStore is an unbounded in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Capability
}

// NewMemoryStore creates a store with the given origins marked Supported.
func NewMemoryStore(trusted ...string) *MemoryStore {
	s := &MemoryStore{entries: make(map[string]Capability, len(trusted))}
	for _, origin := range trusted {
		s.entries[origin] = Supported
	}
	return s
}

// Get returns the capability of origin
func (s *MemoryStore) Get(origin string) Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[origin]
}

// Set resolves origin to c unless it is already resolved
func (s *MemoryStore) Set(origin string, c Capability) bool {
	if !c.Resolved() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[origin].Resolved() {
		return false
	}
	s.entries[origin] = c
	return true
}

// Len returns the number of resolved origins.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of all entries.
func (s *MemoryStore) Snapshot() map[string]Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.entries)
}
