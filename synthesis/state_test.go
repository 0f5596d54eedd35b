package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationState_Update(t *testing.T) {
	t.Parallel()

	plan := samplePlan()
	st := NewGenerationState(plan)
	assert.Equal(t, []string{"grid demand", "future capacity"}, st.RemainingKeyPoints)
	assert.Empty(t, st.TerminologyMap)

	st.Update(0, "Voltix builds grid batteries. In 2021 grid demand rose and the battery pack became common.", plan.Sections[0], plan)

	assert.Equal(t, []string{"Voltix"}, st.EntityNames())
	assert.Equal(t, map[string]string{"battery pack": "storage module"}, st.TerminologyMap)
	assert.Equal(t, []string{"2021"}, st.Timeline)
	assert.Equal(t, []string{"grid demand"}, st.CoveredKeyPoints)
	assert.Equal(t, []string{"future capacity"}, st.RemainingKeyPoints)
	assert.Equal(t, "Background: grid demand", st.SummaryText())

	before := st.Snapshot()
	st.Update(1, "Voltix and Helios expect future capacity to double.", plan.Sections[1], plan)

	assert.Equal(t, []string{"Voltix", "Helios"}, st.EntityNames())
	assert.Equal(t, EntityEntry{Name: "Voltix", Count: 2, FirstSection: 0, LastSection: 1}, st.Entities[0])
	assert.Equal(t, EntityEntry{Name: "Helios", Count: 1, FirstSection: 1, LastSection: 1}, st.Entities[1])
	assert.True(t, st.HasEntity("helios"))
	assert.Empty(t, st.RemainingKeyPoints)
	assert.Equal(t, []string{"grid demand", "future capacity"}, st.CoveredKeyPoints)

	// Nothing recorded earlier disappears.
	for _, name := range before.EntityNames() {
		assert.True(t, st.HasEntity(name), name)
	}
	for term := range before.TerminologyMap {
		assert.Contains(t, st.TerminologyMap, term)
	}
	assert.Subset(t, st.Timeline, before.Timeline)
	require.Len(t, st.Summary, 2)
	assert.Equal(t, "Outlook: future capacity", st.Summary[1])
}

func TestGenerationState_UpdateWithoutKeyPoints(t *testing.T) {
	t.Parallel()

	plan := samplePlan()
	st := NewGenerationState(plan)
	st.Update(0, "nothing relevant here", plan.Sections[1], plan)
	assert.Equal(t, "Outlook: (no key points detected)", st.SummaryText())
	assert.Empty(t, st.Entities)
}

func TestGenerationState_SnapshotIsDeep(t *testing.T) {
	t.Parallel()

	plan := samplePlan()
	st := NewGenerationState(plan)
	st.Update(0, "Voltix uses a battery pack.", plan.Sections[0], plan)
	st.Record(SectionRecord{Index: 0, Title: "Background", Attempts: 1, Status: SectionAccepted, Score: 1})

	snap := st.Snapshot()
	snap.TerminologyMap["x"] = "y"
	snap.Entities[0].Count = 99
	snap.History[0].Attempts = 7

	assert.NotContains(t, st.TerminologyMap, "x")
	assert.Equal(t, 1, st.Entities[0].Count)
	assert.Equal(t, 1, st.History[0].Attempts)
	assert.Equal(t, `#1 "Background" ACCEPTED attempts=1 score=1.00`, st.History[0].String())
}

func TestKeyPointCovered(t *testing.T) {
	t.Parallel()

	assert.True(t, keyPointCovered("grid demand", "Grid Demand grew"))
	assert.True(t, keyPointCovered("rising grid demand", "demand on the grid"))
	assert.False(t, keyPointCovered("rising grid demand", "the grid"))
	assert.True(t, keyPointCovered("capacity", "more capacity"))
	assert.True(t, keyPointCovered("  ", "anything"))
}
