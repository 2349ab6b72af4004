// Package status tracks the latest state of in-flight deliberations so
// clients can poll progress by trace id.
package status

import (
	"sync"
	"time"
)

// Status is the most recent recorded state of one deliberation.
type Status struct {
	TraceID   string    `json:"trace_id"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides thread-safe status tracking with TTL expiry. Expired
// entries are dropped lazily on read; Purge sweeps the rest.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Status
	ttl     time.Duration
}

// NewStore creates a status store whose entries expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]Status),
		ttl:     ttl,
	}
}

// Record stores the current state for a trace id, replacing any previous
// state and resetting its expiry.
func (s *Store) Record(traceID, state string) {
	if traceID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[traceID] = Status{
		TraceID:   traceID,
		State:     state,
		UpdatedAt: time.Now(),
	}
}

// Get retrieves the status for a trace id if it has not expired.
func (s *Store) Get(traceID string) (Status, bool) {
	s.mu.RLock()
	entry, ok := s.entries[traceID]
	s.mu.RUnlock()

	if !ok {
		return Status{}, false
	}
	if time.Since(entry.UpdatedAt) > s.ttl {
		s.evict(traceID, entry.UpdatedAt)
		return Status{}, false
	}
	return entry, true
}

// evict removes an expired entry unless it was refreshed since it was read.
func (s *Store) evict(traceID string, seen time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[traceID]; ok && entry.UpdatedAt.Equal(seen) {
		delete(s.entries, traceID)
	}
}

// Purge removes every expired entry and reports how many were dropped.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for traceID, entry := range s.entries {
		if time.Since(entry.UpdatedAt) > s.ttl {
			delete(s.entries, traceID)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of entries currently held, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Status)
}
