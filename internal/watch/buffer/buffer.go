// Package buffer appends classified changes to debounce sessions.
package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"driftwatch/internal/platform/metrics"
	"driftwatch/internal/watch/models"
)

// Store is the slice of the session store the buffer needs.
type Store interface {
	Append(ctx context.Context, key models.CoalescingKey, change models.BufferedChange, window time.Duration) (created bool, err error)
}

// Buffer implements the sliding-window debounce: every append resets the
// session's expiry clock to the configured window, so a session only closes
// after `window` of silence on its key.
type Buffer struct {
	store   Store
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a session buffer with the given debounce window.
func New(store Store, window time.Duration, logger *slog.Logger, m *metrics.Metrics) *Buffer {
	return &Buffer{store: store, window: window, logger: logger, metrics: m}
}

// Window returns the configured debounce window.
func (b *Buffer) Window() time.Duration { return b.window }

// Append buffers one change under its coalescing key and renews the window.
// Exactly one store write per call.
func (b *Buffer) Append(ctx context.Context, key models.CoalescingKey, change models.BufferedChange) (bool, error) {
	if change.BufferedAt.IsZero() {
		change.BufferedAt = time.Now()
	}

	created, err := b.store.Append(ctx, key, change, b.window)
	if err != nil {
		return false, fmt.Errorf("buffer change for %s: %w", key, err)
	}

	if created {
		b.metrics.SessionsOpened.Inc()
		b.logger.Debug("opened debounce session",
			"key", key.String(),
			"window", b.window.String(),
		)
	}
	b.metrics.ChangesBuffered.Inc()
	return created, nil
}
