// Package listener consumes session-expiry notifications and drives claimed
// sessions through enrichment and dispatch.
package listener

import (
	"context"
	"errors"
	"log/slog"

	"driftwatch/internal/platform/metrics"
	"driftwatch/internal/watch/models"
	"driftwatch/pkg/platform/sentinel"
)

// Store is the slice of the session store the listener needs.
type Store interface {
	ClaimAndDelete(ctx context.Context, key models.CoalescingKey) (*models.Session, error)
	SubscribeExpiry(ctx context.Context, fn func(models.CoalescingKey)) error
}

// Enricher resolves context for a claimed session's changes.
type Enricher interface {
	Enrich(ctx context.Context, sess *models.Session) []models.EnrichedChange
}

// Dispatcher publishes one notification for the enriched session.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *models.Session, enriched []models.EnrichedChange) error
}

// Listener owns the claim protocol. The atomic claim makes it the sole
// consumer of each session even when the transport delivers an expiry
// notification more than once.
type Listener struct {
	store      Store
	enricher   Enricher
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates an expiry listener.
func New(store Store, enricher Enricher, dispatcher Dispatcher, logger *slog.Logger, m *metrics.Metrics) *Listener {
	return &Listener{
		store:      store,
		enricher:   enricher,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
	}
}

// Start subscribes to expiry notifications. Handling runs on the
// subscription's delivery goroutine; the subscription ends with ctx.
func (l *Listener) Start(ctx context.Context) error {
	return l.store.SubscribeExpiry(ctx, func(key models.CoalescingKey) {
		l.HandleExpiry(ctx, key)
	})
}

// HandleExpiry claims and processes the session for key. An empty claim means
// another delivery won the race or the session never existed; both are normal.
// A failure after the claim is logged and swallowed: the session is already
// deleted, so it cannot be retried.
func (l *Listener) HandleExpiry(ctx context.Context, key models.CoalescingKey) {
	sess, err := l.store.ClaimAndDelete(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		l.metrics.EmptyClaims.Inc()
		l.logger.Debug("expiry for already-claimed session", "key", key.String())
		return
	}
	if err != nil {
		l.logger.Error("session claim failed", "key", key.String(), "error", err)
		return
	}

	l.metrics.SessionsClaimed.Inc()

	// Rapid appends can land out of chronological order; present the changes
	// by when they happened, not when they arrived.
	sess.SortChanges()

	enriched := l.enricher.Enrich(ctx, sess)
	if err := l.dispatcher.Dispatch(ctx, sess, enriched); err != nil {
		l.logger.Error("dispatch failed for claimed session",
			"key", key.String(),
			"changes", len(sess.Changes),
			"error", err,
		)
	}
}
