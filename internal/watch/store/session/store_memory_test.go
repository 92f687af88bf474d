package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftwatch/internal/watch/models"
	"driftwatch/pkg/platform/sentinel"
)

func testKey(name string) models.CoalescingKey {
	return models.CoalescingKey{
		OrgID:        "org1",
		MetadataType: "Flow",
		MetadataName: name,
		ActorID:      "user1",
	}
}

func testChange(id string, at time.Time) models.BufferedChange {
	return models.BufferedChange{
		Event: models.RawEvent{
			ID:         id,
			ActionCode: "changedFlow",
			OccurredAt: at,
		},
		Category:   models.CategoryFlow,
		BufferedAt: at,
	}
}

func TestMemoryStore_AppendCreatesThenExtends(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey("Approve_Discount")
	now := time.Now()

	created, err := store.Append(ctx, key, testChange("e1", now), time.Minute)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Append(ctx, key, testChange("e2", now.Add(time.Second)), time.Minute)
	require.NoError(t, err)
	assert.False(t, created)

	sess, err := store.ClaimAndDelete(ctx, key)
	require.NoError(t, err)
	require.Len(t, sess.Changes, 2)
	assert.Equal(t, now.UTC(), sess.FirstChangeTime.UTC())
	assert.Equal(t, now.Add(time.Second).UTC(), sess.LastChangeTime.UTC())
}

func TestMemoryStore_ClaimIsSingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey("Approve_Discount")

	_, err := store.Append(ctx, key, testChange("e1", time.Now()), time.Minute)
	require.NoError(t, err)

	first, err := store.ClaimAndDelete(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Second claim observes nothing: duplicate expiry deliveries are normal.
	second, err := store.ClaimAndDelete(ctx, key)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.Nil(t, second)
}

func TestMemoryStore_ExpiryFiresSubscribers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey("Approve_Discount")

	var mu sync.Mutex
	var fired []models.CoalescingKey
	err := store.SubscribeExpiry(ctx, func(k models.CoalescingKey) {
		mu.Lock()
		fired = append(fired, k)
		mu.Unlock()
	})
	require.NoError(t, err)

	_, err = store.Append(ctx, key, testChange("e1", time.Now()), 10*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1 && fired[0] == key
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_AppendSlidesWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey("Approve_Discount")

	var mu sync.Mutex
	fired := 0
	require.NoError(t, store.SubscribeExpiry(ctx, func(models.CoalescingKey) {
		mu.Lock()
		fired++
		mu.Unlock()
	}))

	window := 60 * time.Millisecond
	_, err := store.Append(ctx, key, testChange("e1", time.Now()), window)
	require.NoError(t, err)

	// Keep appending inside the window; the session must not expire while
	// changes keep arriving.
	for i := 0; i < 4; i++ {
		time.Sleep(window / 3)
		_, err = store.Append(ctx, key, testChange("eN", time.Now()), window)
		require.NoError(t, err)
		mu.Lock()
		assert.Zero(t, fired, "window should have been reset by append")
		mu.Unlock()
	}

	// Silence for a full window closes it exactly once; the session waits for
	// its claim.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, store.Len())

	sess, err := store.ClaimAndDelete(ctx, key)
	require.NoError(t, err)
	assert.Len(t, sess.Changes, 5)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_ExpireNow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey("Approve_Discount")

	fired := make(chan models.CoalescingKey, 1)
	require.NoError(t, store.SubscribeExpiry(ctx, func(k models.CoalescingKey) { fired <- k }))

	_, err := store.Append(ctx, key, testChange("e1", time.Now()), time.Hour)
	require.NoError(t, err)

	store.ExpireNow(key)

	select {
	case k := <-fired:
		assert.Equal(t, key, k)
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}
}
