package session

import (
	"context"
	"sync"
	"time"

	"driftwatch/internal/watch/models"
	"driftwatch/pkg/platform/sentinel"
)

// MemoryStore implements Store in process memory with real timers. It backs
// unit tests and single-process development; the Redis store is the
// production implementation.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	timers   map[string]*time.Timer
	subs     []func(models.CoalescingKey)
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		timers:   make(map[string]*time.Timer),
	}
}

// Append implements Store. A fresh timer replaces the old one on every append,
// mirroring the Redis timer key's TTL reset.
func (s *MemoryStore) Append(_ context.Context, key models.CoalescingKey, change models.BufferedChange, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := key.String()
	sess, ok := s.sessions[id]
	created := !ok
	if created {
		sess = &models.Session{Key: key, FirstChangeTime: change.Event.OccurredAt}
		s.sessions[id] = sess
	}
	sess.Changes = append(sess.Changes, change)
	if change.Event.OccurredAt.Before(sess.FirstChangeTime) {
		sess.FirstChangeTime = change.Event.OccurredAt
	}
	if change.Event.OccurredAt.After(sess.LastChangeTime) {
		sess.LastChangeTime = change.Event.OccurredAt
	}

	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(window, func() { s.expire(key) })
	return created, nil
}

func (s *MemoryStore) expire(key models.CoalescingKey) {
	s.mu.Lock()
	delete(s.timers, key.String())
	subs := make([]func(models.CoalescingKey), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(key)
	}
}

// ExpireNow fires the expiry callbacks for key immediately, regardless of the
// remaining window. Tests use it to close windows deterministically.
func (s *MemoryStore) ExpireNow(key models.CoalescingKey) {
	s.mu.Lock()
	if t, ok := s.timers[key.String()]; ok {
		t.Stop()
	}
	s.mu.Unlock()
	s.expire(key)
}

// ClaimAndDelete implements Store.
func (s *MemoryStore) ClaimAndDelete(_ context.Context, key models.CoalescingKey) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := key.String()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.sessions, id)
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	return sess, nil
}

// SubscribeExpiry implements Store. Callbacks run on the expiring timer's
// goroutine.
func (s *MemoryStore) SubscribeExpiry(_ context.Context, fn func(models.CoalescingKey)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	return nil
}

// Len reports the number of open sessions. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
