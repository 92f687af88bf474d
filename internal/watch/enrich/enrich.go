// Package enrich resolves before/after context for buffered changes.
//
// Enrichment is strictly best-effort: any metadata or summarization failure
// degrades the affected change to its raw display text. A session is never
// aborted and a notification never suppressed because context could not be
// resolved.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"driftwatch/internal/platform/metrics"
	"driftwatch/internal/watch/models"
)

// Definition is one resolved version of a metadata item.
type Definition struct {
	Name       string    `json:"name"`
	Version    string    `json:"version,omitempty"`
	Body       string    `json:"body"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// Item references a metadata item, used for parent lookups.
type Item struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DiffSummary is the summarization service's verdict on a change.
type DiffSummary struct {
	SummaryText string   `json:"summary_text"`
	ChangeList  []string `json:"change_list,omitempty"`
	RiskSignals []string `json:"risk_signals,omitempty"`
}

// MetadataService resolves current and historical item definitions.
// GetPrevious returns nil (no error) when no prior version exists.
type MetadataService interface {
	GetCurrent(ctx context.Context, orgID, itemName string) (*Definition, error)
	GetPrevious(ctx context.Context, orgID, itemName string, before time.Time) (*Definition, error)
	FindReferencingParents(ctx context.Context, orgID, itemName string) ([]Item, error)
}

// Summarizer produces a natural-language explanation of a definition diff.
// An empty previous means "explain the current value standalone".
type Summarizer interface {
	SummarizeDiff(ctx context.Context, previous, current, changeContext string) (*DiffSummary, error)
}

// Router picks an enrichment strategy per change category.
type Router struct {
	meta       MetadataService
	summarizer Summarizer
	logger     *slog.Logger
	metrics    *metrics.Metrics

	metadataTimeout time.Duration
	summaryTimeout  time.Duration
}

// New creates an enrichment router. Timeouts bound each collaborator call; a
// timeout is a normal enrichment failure, not fatal.
func New(meta MetadataService, summarizer Summarizer, logger *slog.Logger, m *metrics.Metrics, metadataTimeout, summaryTimeout time.Duration) *Router {
	return &Router{
		meta:            meta,
		summarizer:      summarizer,
		logger:          logger,
		metrics:         m,
		metadataTimeout: metadataTimeout,
		summaryTimeout:  summaryTimeout,
	}
}

// Enrich resolves context for every change in the session, in the session's
// (already sorted) order. It always returns one EnrichedChange per buffered
// change.
func (r *Router) Enrich(ctx context.Context, sess *models.Session) []models.EnrichedChange {
	enriched := make([]models.EnrichedChange, 0, len(sess.Changes))
	for _, change := range sess.Changes {
		enriched = append(enriched, r.enrichOne(ctx, sess.Key, change))
	}
	return enriched
}

func (r *Router) enrichOne(ctx context.Context, key models.CoalescingKey, change models.BufferedChange) models.EnrichedChange {
	switch change.Category {
	case models.CategoryFlow:
		return r.enrichFlow(ctx, key, change)
	case models.CategoryValidationRule, models.CategoryFormulaField:
		return r.enrichDefinition(ctx, key, change)
	default:
		// Permission, Object, Metadata: no diffing. The raw display text is
		// the explanation and the category's base tier is the risk.
		return models.EnrichedChange{
			Change:      change,
			Explanation: change.Event.DisplayText,
			Risk:        change.Category.BaseRisk(),
		}
	}
}

// enrichFlow resolves the flow's current and immediately-prior versions,
// summarizes the diff, and checks for referencing parents. Parents found
// means the change ripples outward, so the risk is forced up a tier.
func (r *Router) enrichFlow(ctx context.Context, key models.CoalescingKey, change models.BufferedChange) models.EnrichedChange {
	risk := change.Category.BaseRisk()

	current, err := r.getCurrent(ctx, key.OrgID, key.MetadataName)
	if err != nil {
		return r.fallback(key, change, fmt.Errorf("resolve current flow: %w", err))
	}

	previous, err := r.getPrevious(ctx, key.OrgID, key.MetadataName, change.Event.OccurredAt)
	if err != nil {
		r.logger.Warn("previous flow version unresolved, diffing against empty",
			"key", key.String(), "error", err)
		previous = nil
	}

	summary, err := r.summarize(ctx, previous, current, change)
	if err != nil {
		return r.fallback(key, change, fmt.Errorf("summarize flow diff: %w", err))
	}
	if len(summary.RiskSignals) > 0 {
		risk = risk.Escalate()
	}

	if parents := r.findParents(ctx, key); len(parents) > 0 {
		risk = risk.Escalate()
	}

	out := models.EnrichedChange{
		Change:      change,
		Explanation: summary.SummaryText,
		Current:     current.Body,
		Risk:        risk,
	}
	if previous != nil {
		out.Previous = previous.Body
	}
	return out
}

// enrichDefinition handles validation rules and formula fields: diff against
// the prior value when one resolves, otherwise explain the current value
// standalone.
func (r *Router) enrichDefinition(ctx context.Context, key models.CoalescingKey, change models.BufferedChange) models.EnrichedChange {
	current, err := r.getCurrent(ctx, key.OrgID, key.MetadataName)
	if err != nil {
		return r.fallback(key, change, fmt.Errorf("resolve current definition: %w", err))
	}

	previous, err := r.getPrevious(ctx, key.OrgID, key.MetadataName, change.Event.OccurredAt)
	if err != nil {
		r.logger.Warn("previous definition unresolved, explaining current standalone",
			"key", key.String(), "error", err)
		previous = nil
	}

	summary, err := r.summarize(ctx, previous, current, change)
	if err != nil {
		return r.fallback(key, change, fmt.Errorf("summarize definition: %w", err))
	}

	out := models.EnrichedChange{
		Change:      change,
		Explanation: summary.SummaryText,
		Current:     current.Body,
		Risk:        change.Category.BaseRisk(),
	}
	if previous != nil {
		out.Previous = previous.Body
	}
	return out
}

func (r *Router) getCurrent(ctx context.Context, orgID, name string) (*Definition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.metadataTimeout)
	defer cancel()
	return r.meta.GetCurrent(ctx, orgID, name)
}

func (r *Router) getPrevious(ctx context.Context, orgID, name string, before time.Time) (*Definition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.metadataTimeout)
	defer cancel()
	return r.meta.GetPrevious(ctx, orgID, name, before)
}

func (r *Router) findParents(ctx context.Context, key models.CoalescingKey) []Item {
	ctx, cancel := context.WithTimeout(ctx, r.metadataTimeout)
	defer cancel()
	parents, err := r.meta.FindReferencingParents(ctx, key.OrgID, key.MetadataName)
	if err != nil {
		// Missing parent data only skips the amplification, never the change.
		r.logger.Warn("parent lookup failed", "key", key.String(), "error", err)
		return nil
	}
	return parents
}

func (r *Router) summarize(ctx context.Context, previous, current *Definition, change models.BufferedChange) (*DiffSummary, error) {
	// Forced triggers can carry a precomputed summary; reuse it instead of
	// paying for a second summarization call.
	if change.Summary != "" {
		return &DiffSummary{SummaryText: change.Summary}, nil
	}

	prevBody := ""
	if previous != nil {
		prevBody = previous.Body
	}

	ctx, cancel := context.WithTimeout(ctx, r.summaryTimeout)
	defer cancel()
	return r.summarizer.SummarizeDiff(ctx, prevBody, current.Body, change.Event.DisplayText)
}

func (r *Router) fallback(key models.CoalescingKey, change models.BufferedChange, err error) models.EnrichedChange {
	r.metrics.EnrichmentFallbacks.Inc()
	r.logger.Warn("enrichment degraded to display text",
		"key", key.String(),
		"action", change.Event.ActionCode,
		"error", err,
	)
	return models.EnrichedChange{
		Change:      change,
		Explanation: change.Event.DisplayText + " (could not be fully resolved)",
		Risk:        change.Category.BaseRisk(),
		Degraded:    true,
	}
}
