package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"driftwatch/internal/watch/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		actionCode string
		want       models.ChangeCategory
	}{
		{"createdFlow", models.CategoryFlow},
		{"changedFlow", models.CategoryFlow},
		{"activatedFlow", models.CategoryFlow},
		{"deactivatedFlow", models.CategoryFlow},
		{"deletedFlow", models.CategoryFlow},
		{"createdPermissionSet", models.CategoryPermission},
		{"changedPermissionSet", models.CategoryPermission},
		{"assignedPermissionSet", models.CategoryPermission},
		{"changedProfile", models.CategoryPermission},
		{"createdCustomObject", models.CategoryObject},
		{"changedCustomField", models.CategoryObject},
		{"deletedCustomObject", models.CategoryObject},
		{"createdValidationRule", models.CategoryValidationRule},
		{"deactivatedValidationRule", models.CategoryValidationRule},
		{"changedFormulaField", models.CategoryFormulaField},
		{"deployedChangeSet", models.CategoryMetadata},
		{"installedPackage", models.CategoryMetadata},
		{"changedApexTrigger", models.CategoryMetadata},

		// Unknown and near-miss codes classify as ignored, never error.
		{"loginAsUser", models.CategoryIgnored},
		{"changedflow", models.CategoryIgnored},
		{"ChangedFlow", models.CategoryIgnored},
		{"", models.CategoryIgnored},
	}

	for _, tc := range cases {
		t.Run(tc.actionCode, func(t *testing.T) {
			event := models.RawEvent{ActionCode: tc.actionCode}
			assert.Equal(t, tc.want, Classify(event))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	event := models.RawEvent{ActionCode: "changedFlow", DisplayText: "Changed Flow 'X'"}
	first := Classify(event)
	for range 100 {
		assert.Equal(t, first, Classify(event))
	}
}

func TestClassify_IgnoresEverythingButActionCode(t *testing.T) {
	a := models.RawEvent{ID: "1", ActionCode: "changedProfile", DisplayText: "one"}
	b := models.RawEvent{ID: "2", ActionCode: "changedProfile", DisplayText: "completely different"}
	assert.Equal(t, Classify(a), Classify(b))
}
