package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"driftwatch/internal/watch/models"
)

func TestExtractName(t *testing.T) {
	tests := []struct {
		display string
		want    string
		found   bool
	}{
		{`Changed Flow "Approve_Discount"`, "Approve_Discount", true},
		{`Updated validation rule 'Amount_Cap'`, "Amount_Cap", true},
		{`Created custom field "Invoice__c.Total__c"`, "Invoice__c.Total__c", true},
		{`Logged in as another user`, "", false},
		{`Changed something "123bad"`, "", false},
	}

	for _, tc := range tests {
		name, found := extractName(tc.display)
		assert.Equal(t, tc.found, found, tc.display)
		assert.Equal(t, tc.want, name, tc.display)
	}
}

func TestBuildKey(t *testing.T) {
	event := models.RawEvent{
		ID:          "evt-1",
		ActorID:     "usr-9",
		DisplayText: `Changed Flow "Approve_Discount"`,
	}

	key := buildKey("org-1", event, models.CategoryFlow)
	assert.Equal(t, models.CoalescingKey{
		OrgID:        "org-1",
		MetadataType: "Flow",
		MetadataName: "Approve_Discount",
		ActorID:      "usr-9",
	}, key)
}

func TestBuildKey_FallsBackToSectionHintThenID(t *testing.T) {
	event := models.RawEvent{
		ID:          "evt-1",
		ActorID:     "usr-9",
		DisplayText: "Changed page layout",
		SectionHint: "Customize",
	}

	key := buildKey("org-1", event, models.CategoryMetadata)
	assert.Equal(t, "Customize", key.MetadataName)

	event.SectionHint = ""
	key = buildKey("org-1", event, models.CategoryMetadata)
	assert.Equal(t, "evt-1", key.MetadataName)
}

func TestBuildKey_SameItemSameActorCoalesces(t *testing.T) {
	e1 := models.RawEvent{ID: "evt-1", ActorID: "usr-9", DisplayText: `Changed Flow "Approve_Discount"`}
	e2 := models.RawEvent{ID: "evt-2", ActorID: "usr-9", DisplayText: `Activated Flow "Approve_Discount"`}

	assert.Equal(t,
		buildKey("org-1", e1, models.CategoryFlow),
		buildKey("org-1", e2, models.CategoryFlow),
	)

	// A different actor edits the same item: a separate session.
	e3 := models.RawEvent{ID: "evt-3", ActorID: "usr-2", DisplayText: `Changed Flow "Approve_Discount"`}
	assert.NotEqual(t,
		buildKey("org-1", e1, models.CategoryFlow),
		buildKey("org-1", e3, models.CategoryFlow),
	)
}
