package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftwatch/internal/platform/metrics"
	"driftwatch/internal/watch/buffer"
	"driftwatch/internal/watch/models"
	"driftwatch/internal/watch/store/cursor"
	"driftwatch/internal/watch/store/session"
)

type fakeSource struct {
	events []models.RawEvent
	err    error

	sinceCalls  int
	windowCalls int
	lastSince   time.Time
	lastHours   int
}

func (f *fakeSource) FetchSince(_ context.Context, _ string, since time.Time) ([]models.RawEvent, error) {
	f.sinceCalls++
	f.lastSince = since
	return f.events, f.err
}

func (f *fakeSource) FetchWindow(_ context.Context, _ string, hours int) ([]models.RawEvent, error) {
	f.windowCalls++
	f.lastHours = hours
	return f.events, f.err
}

type fakeEnricher struct{}

func (fakeEnricher) Enrich(_ context.Context, sess *models.Session) []models.EnrichedChange {
	enriched := make([]models.EnrichedChange, 0, len(sess.Changes))
	for _, c := range sess.Changes {
		enriched = append(enriched, models.EnrichedChange{
			Change:      c,
			Explanation: c.Event.DisplayText,
			Risk:        c.Category.BaseRisk(),
		})
	}
	return enriched
}

type fakeDispatcher struct {
	sessions []*models.Session
}

func (f *fakeDispatcher) Dispatch(_ context.Context, sess *models.Session, _ []models.EnrichedChange) error {
	f.sessions = append(f.sessions, sess)
	return nil
}

type harness struct {
	orch     *Orchestrator
	source   *fakeSource
	cursors  *cursor.MemoryStore
	sessions *session.MemoryStore
	disp     *fakeDispatcher
}

func newHarness(t *testing.T, window time.Duration) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())

	source := &fakeSource{}
	cursors := cursor.NewMemoryStore()
	sessions := session.NewMemoryStore()
	disp := &fakeDispatcher{}
	buf := buffer.New(sessions, window, log, m)

	return &harness{
		orch:     New(source, cursors, buf, sessions, fakeEnricher{}, disp, []string{"org-1"}, time.Hour, log, m),
		source:   source,
		cursors:  cursors,
		sessions: sessions,
		disp:     disp,
	}
}

func flowEvent(id string, at time.Time) models.RawEvent {
	return models.RawEvent{
		ID:          id,
		ActionCode:  "changedFlow",
		DisplayText: `Changed Flow "Approve_Discount"`,
		ActorID:     "usr-9",
		ActorName:   "Dana Ops",
		OccurredAt:  at,
	}
}

func TestRunCycle_RapidEditsCoalesceIntoOneSession(t *testing.T) {
	h := newHarness(t, 5*time.Minute)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.source.events = []models.RawEvent{
		flowEvent("e1", t0),
		flowEvent("e2", t0.Add(2*time.Minute)),
	}

	result := h.orch.RunCycle(context.Background(), Options{})
	require.Empty(t, result.Errors)
	assert.Equal(t, 2, result.ChangesFound)

	// Both edits landed under one coalescing key; nothing dispatched yet.
	assert.Equal(t, 1, h.sessions.Len())
	assert.Empty(t, h.disp.sessions)

	key := models.CoalescingKey{OrgID: "org-1", MetadataType: "Flow", MetadataName: "Approve_Discount", ActorID: "usr-9"}
	sess, err := h.sessions.ClaimAndDelete(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, sess.Changes, 2)
}

func TestRunCycle_IgnoredEventsAreDropped(t *testing.T) {
	h := newHarness(t, time.Minute)
	t0 := time.Now()
	h.source.events = []models.RawEvent{
		flowEvent("e1", t0),
		{ID: "e2", ActionCode: "loginAsUser", DisplayText: "Logged in as Dana", OccurredAt: t0},
	}

	result := h.orch.RunCycle(context.Background(), Options{})
	require.Empty(t, result.Errors)
	assert.Equal(t, 1, result.ChangesFound)
	assert.Equal(t, 1, h.sessions.Len())
}

func TestRunCycle_AdvancesCursorToNewestEvent(t *testing.T) {
	h := newHarness(t, time.Minute)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newest := t0.Add(10 * time.Minute)
	h.source.events = []models.RawEvent{
		flowEvent("e1", newest),
		flowEvent("e2", t0),
	}

	result := h.orch.RunCycle(context.Background(), Options{})
	require.Empty(t, result.Errors)

	got, err := h.cursors.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, newest, got)

	// Next cycle resumes from the stored cursor instead of the default window.
	h.orch.RunCycle(context.Background(), Options{})
	assert.Equal(t, 1, h.source.sinceCalls)
	assert.Equal(t, newest, h.source.lastSince)
}

func TestRunCycle_FirstRunUsesDefaultLookback(t *testing.T) {
	h := newHarness(t, time.Minute)

	result := h.orch.RunCycle(context.Background(), Options{})
	require.Empty(t, result.Errors)
	assert.Equal(t, 1, h.source.windowCalls)
	assert.Equal(t, DefaultLookbackHours, h.source.lastHours)
	assert.Zero(t, h.source.sinceCalls)

	// No events: the cursor stays unset.
	got, err := h.cursors.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRunCycle_ManualLookbackDoesNotTouchCursor(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.source.events = []models.RawEvent{flowEvent("e1", time.Now())}

	result := h.orch.RunCycle(context.Background(), Options{LookbackHours: 48})
	require.Empty(t, result.Errors)
	assert.Equal(t, 48, h.source.lastHours)

	got, err := h.cursors.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRunCycle_ForceImmediateBypassesWindow(t *testing.T) {
	h := newHarness(t, time.Hour)
	t0 := time.Now()
	h.source.events = []models.RawEvent{
		flowEvent("e1", t0),
		flowEvent("e2", t0.Add(time.Minute)),
	}

	result := h.orch.RunCycle(context.Background(), Options{ForceImmediate: true})
	require.Empty(t, result.Errors)
	assert.Equal(t, 2, result.ChangesFound)

	// No buffering: each change went straight through enrichment and dispatch.
	assert.Equal(t, 0, h.sessions.Len())
	require.Len(t, h.disp.sessions, 2)
	for _, sess := range h.disp.sessions {
		assert.Len(t, sess.Changes, 1)
	}

	// Forced runs leave the cursor alone.
	got, err := h.cursors.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRunCycle_SourceFailureIsReportedNotFatal(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.source.err = errors.New("audit API 503")

	result := h.orch.RunCycle(context.Background(), Options{})
	assert.Zero(t, result.ChangesFound)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "org-1")
	assert.Contains(t, result.Errors[0], "audit API 503")
}

type failingBuffer struct{}

func (failingBuffer) Append(context.Context, models.CoalescingKey, models.BufferedChange) (bool, error) {
	return false, errors.New("redis down")
}

func TestRunCycle_BufferFailureLeavesCursorForRetry(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	source := &fakeSource{events: []models.RawEvent{flowEvent("e1", time.Now())}}
	cursors := cursor.NewMemoryStore()
	orch := New(source, cursors, failingBuffer{}, session.NewMemoryStore(), fakeEnricher{}, &fakeDispatcher{}, []string{"org-1"}, time.Hour, log, m)

	result := orch.RunCycle(context.Background(), Options{})
	require.Len(t, result.Errors, 1)

	got, err := cursors.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "cursor must not advance past an unbuffered batch")
}

func TestForceFlush_DispatchesBufferedSessionNow(t *testing.T) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()
	t0 := time.Now()
	h.source.events = []models.RawEvent{flowEvent("e1", t0), flowEvent("e2", t0.Add(time.Second))}

	result := h.orch.RunCycle(ctx, Options{})
	require.Empty(t, result.Errors)

	key := models.CoalescingKey{OrgID: "org-1", MetadataType: "Flow", MetadataName: "Approve_Discount", ActorID: "usr-9"}
	sess, err := h.orch.ForceFlush(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Len(t, sess.Changes, 2)
	assert.Len(t, h.disp.sessions, 1)

	// The session is spent: a second flush finds nothing.
	sess, err = h.orch.ForceFlush(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Len(t, h.disp.sessions, 1)
}

func TestStartStop_LoopParksAndResumes(t *testing.T) {
	h := newHarness(t, time.Minute)
	ctx := context.Background()

	h.orch.Start(ctx)
	h.orch.Start(ctx) // second Start is a no-op
	h.orch.Stop()
	h.orch.Stop() // second Stop is a no-op

	// Resume after a stop.
	h.orch.Start(ctx)
	h.orch.Stop()
}
