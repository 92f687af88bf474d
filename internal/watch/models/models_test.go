package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescingKey_RoundTrip(t *testing.T) {
	key := CoalescingKey{
		OrgID:        "00D000000000001",
		MetadataType: "Flow",
		MetadataName: "Approve_Discount",
		ActorID:      "005000000000042",
	}

	parsed, err := ParseKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestParseKey_Malformed(t *testing.T) {
	for _, s := range []string{"", "a|b", "a|b|c|d|e"} {
		_, err := ParseKey(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestSession_SortChanges(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c1 := BufferedChange{Event: RawEvent{ID: "c1", OccurredAt: base.Add(1 * time.Second)}}
	c2 := BufferedChange{Event: RawEvent{ID: "c2", OccurredAt: base.Add(2 * time.Second)}}
	c3 := BufferedChange{Event: RawEvent{ID: "c3", OccurredAt: base.Add(3 * time.Second)}}

	// Arrival order differs from chronological order.
	sess := &Session{Changes: []BufferedChange{c3, c1, c2}}
	sess.SortChanges()

	require.Len(t, sess.Changes, 3)
	assert.Equal(t, "c1", sess.Changes[0].Event.ID)
	assert.Equal(t, "c2", sess.Changes[1].Event.ID)
	assert.Equal(t, "c3", sess.Changes[2].Event.ID)
}

func TestRiskLevel_Escalate(t *testing.T) {
	assert.Equal(t, RiskMedium, RiskLow.Escalate())
	assert.Equal(t, RiskHigh, RiskMedium.Escalate())
	assert.Equal(t, RiskCritical, RiskHigh.Escalate())
	assert.Equal(t, RiskCritical, RiskCritical.Escalate())
}

func TestMaxRisk(t *testing.T) {
	assert.Equal(t, RiskHigh, MaxRisk(RiskLow, RiskHigh))
	assert.Equal(t, RiskHigh, MaxRisk(RiskHigh, RiskMedium))
	assert.Equal(t, RiskLow, MaxRisk(RiskLow, RiskLow))
}

func TestChangeCategory_BaseRisk(t *testing.T) {
	assert.Equal(t, RiskHigh, CategoryFlow.BaseRisk())
	assert.Equal(t, RiskHigh, CategoryPermission.BaseRisk())
	assert.Equal(t, RiskMedium, CategoryValidationRule.BaseRisk())
	assert.Equal(t, RiskLow, CategoryMetadata.BaseRisk())
	assert.Equal(t, RiskLow, ChangeCategory("bogus").BaseRisk())
}

func TestSession_Category(t *testing.T) {
	empty := &Session{}
	assert.Equal(t, CategoryIgnored, empty.Category())

	sess := &Session{Changes: []BufferedChange{{Category: CategoryFlow}}}
	assert.Equal(t, CategoryFlow, sess.Category())
}
