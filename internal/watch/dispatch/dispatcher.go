// Package dispatch turns a claimed, enriched session into exactly one
// published notification.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"driftwatch/internal/platform/metrics"
	"driftwatch/internal/watch/models"
)

// Publisher delivers the final payload to the outbound channel. Fire and
// forget: the dispatcher awaits the response only for logging, never for
// correctness.
type Publisher interface {
	Publish(ctx context.Context, payload models.NotificationPayload) error
}

// History records dispatch outcomes. Failures here are logged and ignored.
type History interface {
	Record(ctx context.Context, payload models.NotificationPayload, published bool, publishErr string) error
}

// Dispatcher builds one NotificationPayload per completed session and
// publishes it exactly once. A failed publish is never retried: the session is
// already deleted from the store, and a retry could double-notify on a
// transient broker error. This is the documented at-most-once guarantee.
type Dispatcher struct {
	publisher Publisher
	history   History
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// targetBaseURL builds a deep link into the org's setup UI.
	targetBaseURL string
}

// New creates a dispatcher.
func New(publisher Publisher, history History, logger *slog.Logger, m *metrics.Metrics, targetBaseURL string) *Dispatcher {
	return &Dispatcher{
		publisher:     publisher,
		history:       history,
		logger:        logger,
		metrics:       m,
		targetBaseURL: targetBaseURL,
	}
}

// Dispatch publishes one payload covering the whole enriched session. The
// session is considered closed when this returns, success or not.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *models.Session, enriched []models.EnrichedChange) error {
	if len(enriched) == 0 {
		return fmt.Errorf("dispatch %s: empty enriched session", sess.Key)
	}

	payload := d.buildPayload(sess, enriched)

	publishErr := d.publisher.Publish(ctx, payload)
	if publishErr != nil {
		d.metrics.NotificationsFailed.Inc()
		d.logger.Error("notification publish failed, not retrying",
			"key", sess.Key.String(),
			"changes", payload.ChangeCount,
			"error", publishErr,
		)
	} else {
		d.metrics.NotificationsSent.Inc()
		d.logger.Info("notification published",
			"key", sess.Key.String(),
			"category", payload.Category,
			"risk", payload.Risk,
			"changes", payload.ChangeCount,
		)
	}

	errText := ""
	if publishErr != nil {
		errText = publishErr.Error()
	}
	if err := d.history.Record(ctx, payload, publishErr == nil, errText); err != nil {
		d.logger.Warn("notification history write failed", "key", sess.Key.String(), "error", err)
	}

	return publishErr
}

func (d *Dispatcher) buildPayload(sess *models.Session, enriched []models.EnrichedChange) models.NotificationPayload {
	risk := models.RiskLow
	degraded := false
	summaries := make([]string, 0, len(enriched))
	for _, e := range enriched {
		risk = models.MaxRisk(risk, e.Risk)
		degraded = degraded || e.Degraded
		summaries = append(summaries, e.Explanation)
	}

	first := enriched[0].Change.Event

	return models.NotificationPayload{
		OrgID:        sess.Key.OrgID,
		Category:     string(sess.Category()),
		Subject:      sess.Key.MetadataName,
		ActorID:      sess.Key.ActorID,
		ActorName:    first.ActorName,
		Summaries:    summaries,
		Risk:         risk.String(),
		ChangeCount:  len(enriched),
		FirstChange:  sess.FirstChangeTime,
		LastChange:   sess.LastChangeTime,
		TargetURL:    d.targetURL(sess.Key),
		Degraded:     degraded,
		DispatchedAt: time.Now(),
	}
}

func (d *Dispatcher) targetURL(key models.CoalescingKey) string {
	if d.targetBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/setup/%s/%s", d.targetBaseURL, key.MetadataType, key.MetadataName)
}
