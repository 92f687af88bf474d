// Package session persists debounce sessions keyed by coalescing key.
//
// Two implementations exist: a Redis store for production, where key expiry
// drives the sliding window, and an in-memory store with real timers for
// tests and single-process development.
package session

import (
	"context"
	"time"

	"driftwatch/internal/watch/models"
)

// Store is the only shared mutable state in the pipeline. All mutation goes
// through Append (additive, window-renewing) or ClaimAndDelete (destructive,
// single-winner); no other mutation path exists, which is what makes the
// at-most-one-consumer property hold without a separate lock manager.
type Store interface {
	// Append adds one change to the session for key, creating the session
	// when absent, and resets the expiry window. Every append resets the
	// window, not just the first: a session only closes after `window` of
	// silence on its key.
	Append(ctx context.Context, key models.CoalescingKey, change models.BufferedChange, window time.Duration) (created bool, err error)

	// ClaimAndDelete atomically removes and returns the session for key.
	// Returns sentinel.ErrNotFound when the session was already claimed or
	// never existed; expiry notifications can be delivered more than once,
	// so callers treat that as a normal outcome.
	ClaimAndDelete(ctx context.Context, key models.CoalescingKey) (*models.Session, error)

	// SubscribeExpiry invokes fn for every session whose window elapses.
	// Delivery is at-least-once; fn must tolerate duplicates. The
	// subscription ends when ctx is cancelled.
	SubscribeExpiry(ctx context.Context, fn func(models.CoalescingKey)) error
}
