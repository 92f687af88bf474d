package cursor

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps cursors in process memory. Restarting loses them, which
// just means the first tick after a restart uses the default lookback.
type MemoryStore struct {
	mu      sync.Mutex
	cursors map[string]time.Time
}

// NewMemoryStore creates an empty in-memory cursor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cursors: make(map[string]time.Time)}
}

// Get returns the cursor for orgID, zero time when unset.
func (s *MemoryStore) Get(_ context.Context, orgID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[orgID], nil
}

// Set advances the cursor for orgID.
func (s *MemoryStore) Set(_ context.Context, orgID string, cursor time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[orgID] = cursor
	return nil
}
