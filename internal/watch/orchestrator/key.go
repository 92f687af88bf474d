package orchestrator

import (
	"regexp"

	"driftwatch/internal/watch/models"
)

// Vendor display strings quote the touched item's API name, e.g.
// `Changed Flow "Approve_Discount"` or `Updated validation rule 'Amount_Cap'`.
// Extraction is best-effort: the match is not guaranteed present or unique,
// and callers must treat "not found" as a normal outcome.
var namePattern = regexp.MustCompile(`["']([A-Za-z][A-Za-z0-9_.]*)["']`)

func extractName(displayText string) (string, bool) {
	m := namePattern.FindStringSubmatch(displayText)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// categoryTypes names the metadata type per category for key grouping and
// setup deep links.
var categoryTypes = map[models.ChangeCategory]string{
	models.CategoryFlow:           "Flow",
	models.CategoryPermission:     "PermissionSet",
	models.CategoryObject:         "CustomObject",
	models.CategoryValidationRule: "ValidationRule",
	models.CategoryFormulaField:   "FormulaField",
	models.CategoryMetadata:       "Metadata",
}

// buildKey derives the coalescing key for one classified event. When no item
// name can be extracted from the display text, the event's section hint groups
// related edits; failing that the event stands alone under its own ID rather
// than coalescing with unrelated changes.
func buildKey(orgID string, event models.RawEvent, category models.ChangeCategory) models.CoalescingKey {
	name, ok := extractName(event.DisplayText)
	if !ok {
		if event.SectionHint != "" {
			name = event.SectionHint
		} else {
			name = event.ID
		}
	}

	metaType := categoryTypes[category]
	if metaType == "" {
		metaType = "Metadata"
	}

	return models.CoalescingKey{
		OrgID:        orgID,
		MetadataType: metaType,
		MetadataName: name,
		ActorID:      event.ActorID,
	}
}
