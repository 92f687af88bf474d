package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"driftwatch/internal/watch/models"
	"driftwatch/pkg/platform/sentinel"
)

var (
	claimDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "driftwatch_session_claim_duration_ms",
		Help:    "Latency of atomic session claims in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const (
	// dataKeyPrefix holds the session body; timerKeyPrefix is the TTL shadow
	// key whose expiry closes the window. The body key carries a grace TTL
	// well above any sane window so an orphaned session cannot leak forever,
	// while the timer key carries the actual debounce window.
	dataKeyPrefix  = "dw:session:"
	timerKeyPrefix = "dw:timer:"

	// dataGrace pads the body key's TTL past the window. A claim normally
	// removes the body long before this fires.
	dataGrace = 24 * time.Hour

	expiredEventPattern = "__keyevent@*__:expired"
)

// RedisStore is the production session store. The sliding window is a shadow
// key with TTL = window; Redis keyspace notifications on its expiry drive the
// claim protocol.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore constructs a Redis-backed session store. The client must have
// keyspace expired-event notifications enabled.
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func dataKey(key models.CoalescingKey) string  { return dataKeyPrefix + key.String() }
func timerKey(key models.CoalescingKey) string { return timerKeyPrefix + key.String() }

// Append implements Store. The read-modify-write is not guarded: all writers
// for one key are serialized by the single poll loop, and multi-process
// writers are an explicit non-goal.
func (s *RedisStore) Append(ctx context.Context, key models.CoalescingKey, change models.BufferedChange, window time.Duration) (bool, error) {
	sess, err := s.read(ctx, key)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return false, err
	}

	created := sess == nil
	if created {
		sess = &models.Session{Key: key, FirstChangeTime: change.Event.OccurredAt}
	}
	sess.Changes = append(sess.Changes, change)
	if change.Event.OccurredAt.Before(sess.FirstChangeTime) {
		sess.FirstChangeTime = change.Event.OccurredAt
	}
	if change.Event.OccurredAt.After(sess.LastChangeTime) {
		sess.LastChangeTime = change.Event.OccurredAt
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}

	// One pipeline so body and timer move together. Setting the timer key
	// again is what slides the window.
	pipe := s.client.Pipeline()
	pipe.Set(ctx, dataKey(key), payload, window+dataGrace)
	pipe.Set(ctx, timerKey(key), "1", window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("write session %s: %w", key, err)
	}
	return created, nil
}

func (s *RedisStore) read(ctx context.Context, key models.CoalescingKey) (*models.Session, error) {
	raw, err := s.client.Get(ctx, dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", key, err)
	}
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return &sess, nil
}

// ClaimAndDelete implements Store with a single GETDEL, so two concurrent
// claims for one key can never both observe the session.
func (s *RedisStore) ClaimAndDelete(ctx context.Context, key models.CoalescingKey) (*models.Session, error) {
	start := time.Now()
	defer func() {
		claimDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	raw, err := s.client.GetDel(ctx, dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim session %s: %w", key, err)
	}

	// Best-effort: the timer key either already expired or will, harmlessly.
	if err := s.client.Del(ctx, timerKey(key)).Err(); err != nil {
		s.logger.Warn("failed to delete session timer key", "key", key.String(), "error", err)
	}

	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode claimed session %s: %w", key, err)
	}
	return &sess, nil
}

// SubscribeExpiry implements Store over Redis keyspace notifications. It
// returns once the pattern subscription is confirmed; delivery then runs on a
// background goroutine until ctx is cancelled.
func (s *RedisStore) SubscribeExpiry(ctx context.Context, fn func(models.CoalescingKey)) error {
	sub := s.client.PSubscribe(ctx, expiredEventPattern)

	// Ensures the subscription actually started.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe expired events: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				expired := m.Payload
				if !strings.HasPrefix(expired, timerKeyPrefix) {
					continue
				}
				key, err := models.ParseKey(strings.TrimPrefix(expired, timerKeyPrefix))
				if err != nil {
					s.logger.Warn("unparsable timer key expired", "key", expired, "error", err)
					continue
				}
				fn(key)
			}
		}
	}()

	return nil
}
