// Package orchestrator runs the periodic poll loop: fetch new audit events,
// classify them, and route them into debounce sessions or straight through
// enrichment for forced triggers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"driftwatch/internal/platform/metrics"
	"driftwatch/internal/watch/classifier"
	"driftwatch/internal/watch/models"
	"driftwatch/pkg/platform/sentinel"
)

// DefaultLookbackHours bounds the first fetch for an org with no stored
// cursor, and manual runs that do not specify a window.
const DefaultLookbackHours = 24

// AuditSource pulls raw events from the org's setup audit stream.
type AuditSource interface {
	FetchSince(ctx context.Context, orgID string, since time.Time) ([]models.RawEvent, error)
	FetchWindow(ctx context.Context, orgID string, hours int) ([]models.RawEvent, error)
}

// CursorStore persists the last processed audit timestamp per org.
type CursorStore interface {
	Get(ctx context.Context, orgID string) (time.Time, error)
	Set(ctx context.Context, orgID string, cursor time.Time) error
}

// Buffer appends classified changes to debounce sessions.
type Buffer interface {
	Append(ctx context.Context, key models.CoalescingKey, change models.BufferedChange) (created bool, err error)
}

// Claimer atomically removes a session from the store, for forced flushes.
type Claimer interface {
	ClaimAndDelete(ctx context.Context, key models.CoalescingKey) (*models.Session, error)
}

// Enricher resolves context for a session's changes.
type Enricher interface {
	Enrich(ctx context.Context, sess *models.Session) []models.EnrichedChange
}

// Dispatcher publishes one notification per session.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *models.Session, enriched []models.EnrichedChange) error
}

// Options tune one cycle. LookbackHours switches the fetch to a fixed window
// (manual runs); ForceImmediate bypasses buffering and dispatches every change
// synchronously ("check now").
type Options struct {
	LookbackHours  int
	ForceImmediate bool
}

// Orchestrator drives the pipeline. One active poll loop per process; Stop
// parks it dormant and Start resumes it.
type Orchestrator struct {
	source     AuditSource
	cursors    CursorStore
	buffer     Buffer
	claimer    Claimer
	enricher   Enricher
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics

	orgs     []string
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New wires an orchestrator. All collaborators are injected; the orchestrator
// holds no hidden global state.
func New(
	source AuditSource,
	cursors CursorStore,
	buffer Buffer,
	claimer Claimer,
	enricher Enricher,
	dispatcher Dispatcher,
	orgs []string,
	interval time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		source:     source,
		cursors:    cursors,
		buffer:     buffer,
		claimer:    claimer,
		enricher:   enricher,
		dispatcher: dispatcher,
		orgs:       orgs,
		interval:   interval,
		logger:     logger,
		metrics:    m,
	}
}

// Start launches the poll loop. Calling Start on a running orchestrator is a
// no-op. The loop also stops when ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.stopped = make(chan struct{})

	go o.run(loopCtx, o.stopped)
}

// Stop parks the loop. A tick in flight finishes; only the next tick is
// prevented. Start resumes polling afterwards.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	stopped := o.stopped
	o.cancel = nil
	o.stopped = nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (o *Orchestrator) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.logger.Info("poll loop started", "interval", o.interval.String(), "orgs", len(o.orgs))

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("poll loop parked")
			return
		case <-ticker.C:
			// Stop only prevents the next tick; the cycle itself runs on an
			// uncancellable context so a shutdown never half-buffers a batch.
			result := o.RunCycle(context.WithoutCancel(ctx), Options{})
			if len(result.Errors) > 0 {
				o.logger.Warn("cycle completed with errors",
					"changes_found", result.ChangesFound,
					"errors", result.Errors,
				)
			}
		}
	}
}

// RunCycle executes one Fetching -> Classifying -> Routing pass over every
// configured org. Partial failure is surfaced in the result; the cycle keeps
// going for the remaining orgs.
func (o *Orchestrator) RunCycle(ctx context.Context, opts Options) models.CycleResult {
	start := time.Now()
	defer func() {
		o.metrics.CycleDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	var result models.CycleResult
	for _, orgID := range o.orgs {
		found, err := o.cycleOrg(ctx, orgID, opts)
		result.ChangesFound += found
		if err != nil {
			o.metrics.CycleErrors.Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("org %s: %v", orgID, err))
		}
	}
	return result
}

func (o *Orchestrator) cycleOrg(ctx context.Context, orgID string, opts Options) (int, error) {
	events, cursor, err := o.fetch(ctx, orgID, opts)
	if err != nil {
		return 0, fmt.Errorf("fetch audit events: %w", err)
	}

	found := 0
	var routeErr error
	for _, event := range events {
		category := classifier.Classify(event)
		if category == models.CategoryIgnored {
			o.metrics.EventsIgnored.Inc()
			continue
		}
		found++

		if event.OccurredAt.After(cursor) {
			cursor = event.OccurredAt
		}

		if opts.ForceImmediate {
			o.dispatchImmediate(ctx, orgID, event, category)
			continue
		}

		key := buildKey(orgID, event, category)
		change := models.BufferedChange{
			Event:      event,
			Category:   category,
			BufferedAt: time.Now(),
		}
		if _, err := o.buffer.Append(ctx, key, change); err != nil {
			// Store trouble: skip the rest of this org's batch and leave the
			// cursor where it was, so the next tick re-fetches everything.
			routeErr = fmt.Errorf("buffer change: %w", err)
			break
		}
	}

	if routeErr != nil {
		return found, routeErr
	}

	// The cursor moves only after the whole batch routed, so a failed tick
	// re-fetches rather than drops.
	if !opts.ForceImmediate && opts.LookbackHours == 0 && len(events) > 0 {
		if err := o.cursors.Set(ctx, orgID, cursor); err != nil {
			return found, fmt.Errorf("advance cursor: %w", err)
		}
	}
	return found, nil
}

// fetch pulls events either after the stored cursor (normal polling) or for a
// fixed lookback window (manual runs). It returns the cursor baseline the
// caller should advance from.
func (o *Orchestrator) fetch(ctx context.Context, orgID string, opts Options) ([]models.RawEvent, time.Time, error) {
	if opts.LookbackHours > 0 {
		events, err := o.source.FetchWindow(ctx, orgID, opts.LookbackHours)
		return events, time.Time{}, err
	}

	cursor, err := o.cursors.Get(ctx, orgID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read cursor: %w", err)
	}
	if cursor.IsZero() {
		events, err := o.source.FetchWindow(ctx, orgID, DefaultLookbackHours)
		return events, cursor, err
	}

	events, err := o.source.FetchSince(ctx, orgID, cursor)
	return events, cursor, err
}

// dispatchImmediate skips buffering on purpose: forced triggers answer "check
// now" requests and must not wait out the debounce window.
func (o *Orchestrator) dispatchImmediate(ctx context.Context, orgID string, event models.RawEvent, category models.ChangeCategory) {
	key := buildKey(orgID, event, category)
	now := time.Now()
	sess := &models.Session{
		Key: key,
		Changes: []models.BufferedChange{{
			Event:      event,
			Category:   category,
			BufferedAt: now,
		}},
		FirstChangeTime: event.OccurredAt,
		LastChangeTime:  event.OccurredAt,
	}

	enriched := o.enricher.Enrich(ctx, sess)
	if err := o.dispatcher.Dispatch(ctx, sess, enriched); err != nil {
		o.logger.Error("immediate dispatch failed", "key", key.String(), "error", err)
	}
}

// ForceFlush claims the buffered session for key right now, bypassing the
// remaining window, and dispatches it. Returns nil when nothing was buffered.
func (o *Orchestrator) ForceFlush(ctx context.Context, key models.CoalescingKey) (*models.Session, error) {
	sess, err := o.claimer.ClaimAndDelete(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim session %s: %w", key, err)
	}

	o.metrics.SessionsClaimed.Inc()
	sess.SortChanges()

	enriched := o.enricher.Enrich(ctx, sess)
	if err := o.dispatcher.Dispatch(ctx, sess, enriched); err != nil {
		o.logger.Error("dispatch failed for flushed session", "key", key.String(), "error", err)
	}
	return sess, nil
}
