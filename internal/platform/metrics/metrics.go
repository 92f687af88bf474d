package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the aggregation pipeline.
type Metrics struct {
	SessionsOpened       prometheus.Counter
	ChangesBuffered      prometheus.Counter
	SessionsClaimed      prometheus.Counter
	EmptyClaims          prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationsFailed  prometheus.Counter
	EnrichmentFallbacks  prometheus.Counter
	EventsIgnored        prometheus.Counter
	CycleDurationSeconds prometheus.Histogram
	CycleErrors          prometheus.Counter
}

// New creates all pipeline metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on reg. Tests pass a fresh registry so
// multiple constructions in one binary do not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_sessions_opened_total",
			Help: "Debounce sessions created on first append for a coalescing key",
		}),
		ChangesBuffered: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_changes_buffered_total",
			Help: "Classified changes appended to sessions",
		}),
		SessionsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_sessions_claimed_total",
			Help: "Sessions claimed for dispatch after their window closed",
		}),
		EmptyClaims: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_empty_claims_total",
			Help: "Expiry notifications whose session was already claimed or absent",
		}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_notifications_sent_total",
			Help: "Notification payloads published successfully",
		}),
		NotificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_notifications_failed_total",
			Help: "Notification payloads whose publish failed (not retried)",
		}),
		EnrichmentFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_enrichment_fallbacks_total",
			Help: "Changes enriched via the degraded display-text fallback",
		}),
		EventsIgnored: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_events_ignored_total",
			Help: "Raw events whose action code classified as ignored",
		}),
		CycleDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "driftwatch_cycle_duration_seconds",
			Help:    "Wall time of one orchestrator poll cycle",
			Buckets: prometheus.DefBuckets,
		}),
		CycleErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "driftwatch_cycle_errors_total",
			Help: "Errors surfaced by poll cycles (fetch, buffering, store)",
		}),
	}
}
