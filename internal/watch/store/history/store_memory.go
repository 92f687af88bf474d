package history

import (
	"context"
	"sync"

	"driftwatch/internal/watch/models"
)

// Entry is one recorded dispatch outcome.
type Entry struct {
	Payload      models.NotificationPayload
	Published    bool
	PublishError string
}

// MemoryStore keeps notification history in process memory for tests and
// deployments without Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record implements the dispatcher's history contract.
func (s *MemoryStore) Record(_ context.Context, payload models.NotificationPayload, published bool, publishErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{Payload: payload, Published: published, PublishError: publishErr})
	return nil
}

// Entries returns a copy of everything recorded so far.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
