package synthesis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderRewritePrompt(t *testing.T) {
	t.Parallel()

	req := RewriteRequest{
		StyleInstruction: "plain English",
		GlobalAnchor:     "Opening words",
		CurrentChunk:     "The chunk body.",
		ChunkIndex:       1,
		TotalChunks:      3,
	}
	got := RenderRewritePrompt(req)
	assert.True(t, strings.HasPrefix(got, "You are a faithful rewriter."))
	assert.Contains(t, got, "Style instruction: plain English")
	assert.Contains(t, got, "Chunk 2 of 3")
	assert.Contains(t, got, "Global anchor (original opening of the document):\nOpening words")
	assert.Contains(t, got, "Generated prefix (end of the rewritten text so far):\n(none)")
	assert.True(t, strings.HasSuffix(got, "Current chunk:\nThe chunk body."))
	assert.NotContains(t, got, "STRICT FIDELITY")

	req.StrictFidelity = true
	assert.Contains(t, RenderRewritePrompt(req), "STRICT FIDELITY")

	req.PromptLanguage = LanguageChinese
	zh := RenderRewritePrompt(req)
	assert.True(t, strings.HasPrefix(zh, "你是一名忠实改写助手。"))
	assert.Contains(t, zh, "当前分块：\nThe chunk body.")
	assert.Contains(t, zh, "第 2 块，共 3 块")
}

func TestRenderPlanPrompt(t *testing.T) {
	t.Parallel()

	got := RenderPlanPrompt(LanguageEnglish, PlanRequest{Topic: "Tidal power", Objective: "Survey", TargetTotalLength: 900})
	assert.Contains(t, got, "Topic: Tidal power")
	assert.Contains(t, got, "Audience: general technical audience")
	assert.Contains(t, got, "Tone: neutral technical")
	assert.Contains(t, got, "Target total length (tokens): 900")
	assert.Contains(t, got, `"terminology_preferences":{"example_term":"preferred phrasing"}`)

	zh := RenderPlanPrompt(LanguageChinese, PlanRequest{Topic: "潮汐能", Objective: "综述"})
	assert.Contains(t, zh, "主题：潮汐能")
}

func TestRenderSectionPrompt(t *testing.T) {
	t.Parallel()

	plan := samplePlan()
	st := NewGenerationState(plan)
	got := RenderSectionPrompt(LanguageEnglish, plan, st, "", plan.Sections[0])
	assert.Contains(t, got, "Global plan:\n{")
	assert.Contains(t, got, `"remaining_key_points":["grid demand","future capacity"]`)
	assert.Contains(t, got, "Recent generated text:\n(none)")
	assert.Contains(t, got, `"title":"Background"`)
	assert.Contains(t, got, "allow +/-20%")
}

func TestRenderSectionPromptCompressed(t *testing.T) {
	t.Parallel()

	plan := samplePlan()
	plan.Sections = append(plan.Sections,
		SectionSpec{Title: "Risks", KeyPoints: []string{"r"}, TargetLength: 10},
		SectionSpec{Title: "Summary", KeyPoints: []string{"s"}, TargetLength: 10},
	)
	st := NewGenerationState(plan)
	st.Update(0, "Voltix covered grid demand.", plan.Sections[0], plan)

	cfg := DefaultGenerationConfig()
	cfg.UpcomingSectionsPreview = 1
	got := RenderSectionPromptCompressed(LanguageEnglish, plan, st, plan.Sections[1], "recent words", 1, cfg)

	assert.Contains(t, got, "Incremental state (progress: 1/4):")
	assert.Contains(t, got, `"upcoming_sections": [
    "Risks"
  ]`)
	assert.NotContains(t, got, `"Summary"`)
	assert.Contains(t, got, `"covered_summary": "grid demand"`)
	assert.Contains(t, got, `"Voltix"`)
	assert.NotContains(t, got, "Global plan:")
	assert.True(t, strings.HasSuffix(got, "Output only the current section body text."))
}

func TestSummarizeCoveredPoints(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "None yet", summarizeCoveredPoints(LanguageEnglish, nil, 3))
	assert.Equal(t, "暂无", summarizeCoveredPoints(LanguageChinese, nil, 3))
	assert.Equal(t, "a; b", summarizeCoveredPoints(LanguageEnglish, []string{"a", "b"}, 3))
	assert.Equal(t, "4 points total, recent: c; d", summarizeCoveredPoints(LanguageEnglish, []string{"a", "b", "c", "d"}, 2))
}

func TestRenderRepairPrompt(t *testing.T) {
	t.Parallel()

	plan := samplePlan()
	st := NewGenerationState(plan)
	spec := plan.Sections[0]
	issues := []string{
		"Missing required entity: 'Voltix'",
		"Section length too short: 10 tokens, below minimum 48 (target 60)",
		"Section is repetitive: 3-gram overlap 0.80 with prior sections",
		"Prefer 'storage module' over 'battery pack'.",
	}
	got := RenderRepairPrompt(LanguageEnglish, st, spec, "old draft", issues, 2)

	assert.Contains(t, got, "Revision attempt: 2")
	assert.Contains(t, got, "=== CURRENT PROBLEMATIC TEXT ===\nold draft")
	assert.Contains(t, got, "Target length: ~60 tokens (+/-20% acceptable)")
	assert.Contains(t, got, "ENTITY COVERAGE REQUIREMENTS:\n  - Missing required entity: 'Voltix'")
	assert.Contains(t, got, "Expand on key points")
	assert.NotContains(t, got, "Condense verbose")
	assert.Contains(t, got, "REPETITION FIXES:")
	assert.Contains(t, got, "OTHER ISSUES TO FIX:\n  - Prefer 'storage module' over 'battery pack'.")

	long := RenderRepairPrompt(LanguageEnglish, st, spec, "d", []string{"Section length too long: 99 tokens, above maximum 72 (target 60)"}, 1)
	assert.Contains(t, long, "Condense verbose")
	assert.NotContains(t, long, "ENTITY COVERAGE")
}

func TestClassifyIssues(t *testing.T) {
	t.Parallel()

	entity, length, repetition, other := classifyIssues([]string{
		"Missing required entity: 'A'",
		"Section length too long",
		"Section is repetitive",
		"Section may drift",
	})
	assert.Len(t, entity, 1)
	assert.Len(t, length, 1)
	assert.Len(t, repetition, 1)
	assert.Equal(t, []string{"Section may drift"}, other)
}

func TestRenderConsistencyPrompt(t *testing.T) {
	t.Parallel()

	plan := samplePlan()
	got := RenderConsistencyPrompt(LanguageEnglish, plan, NewGenerationState(plan), "the draft", nil)
	assert.Contains(t, got, "Quality findings:\n[]")
	assert.Contains(t, got, "Draft text:\nthe draft")
	assert.NotContains(t, got, "covered_key_points")

	zh := RenderConsistencyPrompt(LanguageChinese, plan, NewGenerationState(plan), "草稿", []string{"x"})
	assert.Contains(t, zh, "草稿文本：\n草稿")
}
