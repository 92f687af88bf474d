package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ChangeCategory is the closed set of semantic change categories a raw audit
// event can classify into. Ignored is a valid, expected outcome for action
// codes we do not track, not an error.
type ChangeCategory string

const (
	CategoryFlow           ChangeCategory = "flow"
	CategoryPermission     ChangeCategory = "permission"
	CategoryObject         ChangeCategory = "object"
	CategoryValidationRule ChangeCategory = "validation_rule"
	CategoryFormulaField   ChangeCategory = "formula_field"
	CategoryMetadata       ChangeCategory = "metadata"
	CategoryIgnored        ChangeCategory = "ignored"
)

// RiskLevel orders notification severity. Comparisons rely on the numeric
// ordering, so new levels must slot in between existing ones deliberately.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Escalate returns the next tier up. Critical stays critical.
func (r RiskLevel) Escalate() RiskLevel {
	if r >= RiskCritical {
		return RiskCritical
	}
	return r + 1
}

// MaxRisk returns the higher of two levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if a > b {
		return a
	}
	return b
}

// baseRisk maps each category to the risk tier a change starts at before any
// enrichment-driven escalation.
var baseRisk = map[ChangeCategory]RiskLevel{
	CategoryFlow:           RiskHigh,
	CategoryPermission:     RiskHigh,
	CategoryObject:         RiskMedium,
	CategoryValidationRule: RiskMedium,
	CategoryFormulaField:   RiskMedium,
	CategoryMetadata:       RiskLow,
	CategoryIgnored:        RiskLow,
}

// BaseRisk returns the starting risk tier for a category.
func (c ChangeCategory) BaseRisk() RiskLevel {
	if r, ok := baseRisk[c]; ok {
		return r
	}
	return RiskLow
}

// RawEvent is one record from the org's setup audit stream. Immutable once
// read from the audit source.
type RawEvent struct {
	ID          string    `json:"id"`
	ActionCode  string    `json:"action_code"`
	DisplayText string    `json:"display_text"`
	ActorID     string    `json:"actor_id"`
	ActorName   string    `json:"actor_name"`
	OccurredAt  time.Time `json:"occurred_at"`
	SectionHint string    `json:"section_hint,omitempty"`
}

// CoalescingKey identifies one debounce session. Two events with the same key
// inside overlapping windows coalesce into one notification.
type CoalescingKey struct {
	OrgID        string `json:"org_id"`
	MetadataType string `json:"metadata_type"`
	MetadataName string `json:"metadata_name"`
	ActorID      string `json:"actor_id"`
}

const keySeparator = "|"

// String renders the key as a stable, parsable identifier suitable as a Redis
// key suffix. Fields must not contain the separator; audit sources emit IDs
// and API names, neither of which does.
func (k CoalescingKey) String() string {
	return strings.Join([]string{k.OrgID, k.MetadataType, k.MetadataName, k.ActorID}, keySeparator)
}

// ParseKey reverses CoalescingKey.String.
func ParseKey(s string) (CoalescingKey, error) {
	parts := strings.Split(s, keySeparator)
	if len(parts) != 4 {
		return CoalescingKey{}, fmt.Errorf("malformed coalescing key %q", s)
	}
	return CoalescingKey{
		OrgID:        parts[0],
		MetadataType: parts[1],
		MetadataName: parts[2],
		ActorID:      parts[3],
	}, nil
}

// BufferedChange is one classified raw event held in a session until the
// window closes.
type BufferedChange struct {
	Event       RawEvent       `json:"event"`
	Category    ChangeCategory `json:"category"`
	BufferedAt  time.Time      `json:"buffered_at"`
	VersionHint string         `json:"version_hint,omitempty"`
	// Summary is set when a precomputed explanation already exists for the
	// change (forced triggers reuse it to skip a second summarization call).
	Summary string `json:"summary,omitempty"`
}

// Session is the buffered, not-yet-dispatched set of changes for one
// coalescing key. It is owned exclusively by the session store until claimed;
// the claim hands ownership to exactly one consumer.
type Session struct {
	Key             CoalescingKey    `json:"key"`
	Changes         []BufferedChange `json:"changes"`
	FirstChangeTime time.Time        `json:"first_change_time"`
	LastChangeTime  time.Time        `json:"last_change_time"`
}

// SortChanges orders the session's changes by OccurredAt ascending. Rapid
// appends can arrive out of chronological order, so arrival order is not
// trusted.
func (s *Session) SortChanges() {
	sort.SliceStable(s.Changes, func(i, j int) bool {
		return s.Changes[i].Event.OccurredAt.Before(s.Changes[j].Event.OccurredAt)
	})
}

// Category reports the session's dominant category: the category of its first
// change. All changes under one key target the same metadata item, so mixed
// categories only occur when a vendor reuses a name across types.
func (s *Session) Category() ChangeCategory {
	if len(s.Changes) == 0 {
		return CategoryIgnored
	}
	return s.Changes[0].Category
}

// EnrichedChange is a BufferedChange plus resolved before/after context. It is
// an in-memory projection consumed immediately by the dispatcher and never
// persisted.
type EnrichedChange struct {
	Change      BufferedChange
	Explanation string
	Previous    string
	Current     string
	Risk        RiskLevel
	// Degraded marks changes whose metadata or summary could not be fully
	// resolved; the explanation falls back to the raw display text.
	Degraded bool
}

// NotificationPayload is the final externally-published artifact for one
// completed session. Write-once, fire-and-forget.
type NotificationPayload struct {
	OrgID        string    `json:"org_id"`
	Category     string    `json:"category"`
	Subject      string    `json:"subject"`
	ActorID      string    `json:"actor_id"`
	ActorName    string    `json:"actor_name,omitempty"`
	Summaries    []string  `json:"summaries"`
	Risk         string    `json:"risk"`
	ChangeCount  int       `json:"change_count"`
	FirstChange  time.Time `json:"first_change"`
	LastChange   time.Time `json:"last_change"`
	TargetURL    string    `json:"target_url,omitempty"`
	Degraded     bool      `json:"degraded,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// CycleResult reports one orchestrator cycle to the caller. Partial failure is
// data, not an exception: the cycle keeps going and collects errors here.
type CycleResult struct {
	ChangesFound int      `json:"changes_found"`
	Errors       []string `json:"errors,omitempty"`
}
