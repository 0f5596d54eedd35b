package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptLanguage selects the language prompts are rendered in.
type PromptLanguage string

const (
	LanguageEnglish PromptLanguage = "en"
	LanguageChinese PromptLanguage = "zh"
)

func resolveLanguage(l PromptLanguage) PromptLanguage {
	if l == LanguageChinese {
		return LanguageChinese
	}
	return LanguageEnglish
}

type promptText struct {
	none string

	rewriteIntro  string
	rewriteRules  string
	rewriteStrict string
	style         string
	chunkPosition string
	anchor        string
	prefix        string
	currentChunk  string

	planIntro  string
	planRules  string
	planFields string
	planSchema string

	sectionIntro      string
	sectionRules      string
	compressedRules   string
	globalPlan        string
	planContext       string
	currentState      string
	incrementalState  string
	recentText        string
	sectionSpec       string
	lengthTolerance   string
	sectionOutputOnly string

	repairIntro       string
	repairAttempt     string
	repairCurrent     string
	repairReqs        string
	repairTitle       string
	repairTarget      string
	repairKeyPoints   string
	repairEntities    string
	repairConstraints string
	repairIssues      string
	repairEntity      []string
	repairLength      string
	repairExpand      []string
	repairCondense    []string
	repairRepetition  []string
	repairOther       string
	repairRevision    string
	repairCovered     string
	repairKnown       string
	repairTail        string

	consistencyIntro    string
	consistencyRules    string
	consistencyFindings string
	consistencyDraft    string
	consistencyTail     string

	noneYet      string
	pointsRecent string
}

var promptTexts = map[PromptLanguage]promptText{
	LanguageEnglish: {
		none: "(none)",

		rewriteIntro: "You are a faithful rewriter.",
		rewriteRules: `Rewrite the current chunk according to the style instruction.
Rules:
1) Preserve every fact, name, number and date in the chunk.
2) Do not add information that is not in the chunk.
3) Continue naturally from the generated prefix; do not repeat it.
4) Output only the rewritten chunk, with no preamble or commentary.`,
		rewriteStrict: "STRICT FIDELITY: the previous attempt drifted from the source. Keep the meaning of every sentence and reproduce all entities and numbers exactly.",
		style:         "Style instruction: ",
		chunkPosition: "Chunk %d of %d",
		anchor:        "Global anchor (original opening of the document):",
		prefix:        "Generated prefix (end of the rewritten text so far):",
		currentChunk:  "Current chunk:",

		planIntro: "You are planning a long-form, section-wise generation task.",
		planRules: `CRITICAL: Output ONLY the JSON object. Do not output any thinking, planning, or explanation text.
Your response must START with '{' and END with '}'. Do not wrap it in markdown code blocks.

Build a complete generation plan with coherent sections and explicit coverage points.`,
		planFields: "Topic: %s\nObjective: %s\nAudience: %s\nTone: %s\nTarget total length (tokens): %d",
		planSchema: "Output schema (return ONLY a JSON object matching this structure):",

		sectionIntro: "You are generating one section of a long article.",
		sectionRules: `CRITICAL: Output ONLY the section body text. No thinking, no planning, no preamble.
Rules:
1) Follow the plan and the current section spec strictly.
2) Keep terminology, entities, and timeline consistent with the state.
3) Avoid repeating points already covered in the recent text.
4) Output only the current section body text, with no JSON, markdown or explanations.`,
		compressedRules: `CRITICAL: Output ONLY the section body text. No thinking, no planning, no preamble.
Rules:
1) Follow the current section spec strictly.
2) Keep terminology consistent with the known entities.
3) Cover all remaining points listed below that belong to this section.
4) Do not repeat content from the covered summary.
5) Stay coherent with the upcoming sections.`,
		globalPlan:        "Global plan:",
		planContext:       "Plan context:",
		currentState:      "Current state:",
		incrementalState:  "Incremental state (progress: %s):",
		recentText:        "Recent generated text:",
		sectionSpec:       "Current section spec:",
		lengthTolerance:   "Target length is approximate (allow +/-20%).",
		sectionOutputOnly: "Output only the current section body text.",

		repairIntro:       "You are REVISING a previously generated section to fix quality issues.",
		repairAttempt:     "Revision attempt: %d",
		repairCurrent:     "=== CURRENT PROBLEMATIC TEXT ===",
		repairReqs:        "=== SECTION REQUIREMENTS ===",
		repairTitle:       "Title: ",
		repairTarget:      "Target length: ~%d tokens (+/-20%% acceptable)",
		repairKeyPoints:   "Key points to cover:",
		repairEntities:    "Required entities (MUST include):",
		repairConstraints: "Constraints:",
		repairIssues:      "=== ISSUES IDENTIFIED ===",
		repairEntity: []string{
			"ENTITY COVERAGE REQUIREMENTS:",
			"You MUST explicitly mention each missing entity:",
			"  - Add a dedicated sentence introducing the entity",
			"  - Integrate it naturally into the existing content",
			"  - Make sure the name matches exactly (case-insensitive)",
		},
		repairLength: "LENGTH REQUIREMENTS:",
		repairExpand: []string{
			"  - Expand on key points with more detail",
			"  - Add concrete examples or explanations",
			"  - Elaborate on implications or context",
		},
		repairCondense: []string{
			"  - Remove redundant sentences",
			"  - Condense verbose explanations",
			"  - Focus on core points only",
		},
		repairRepetition: []string{
			"REPETITION FIXES:",
			"  - Use different phrasing and vocabulary",
			"  - Focus on aspects unique to this section",
			"  - Avoid restating concepts from previous sections",
		},
		repairOther:    "OTHER ISSUES TO FIX:",
		repairRevision: "=== REVISION REQUIREMENTS ===\n1) Fix ALL listed issues above\n2) Stay consistent with already-covered content:",
		repairCovered:  "   Covered key points: ",
		repairKnown:    "   Known entities: ",
		repairTail: `3) Preserve the original meaning and structure where possible
4) Output ONLY the revised section text, with no labels, issue summaries, JSON or code blocks.`,

		consistencyIntro: "You are running a light consistency pass on a generated long-form draft.",
		consistencyRules: `CRITICAL: Output ONLY the revised text. No thinking, no planning, no preamble.
Allowed edits only:
1) fix terminology consistency
2) reconcile contradictions with earlier sections
3) improve transitions
4) add 1-2 short sentences for missing key points
Do not perform major rewrites or change the structure. Keep every number and date.`,
		consistencyFindings: "Quality findings:",
		consistencyDraft:    "Draft text:",
		consistencyTail:     "Output only the revised text.",

		noneYet:      "None yet",
		pointsRecent: "%d points total, recent: %s",
	},
	LanguageChinese: {
		none: "(无)",

		rewriteIntro: "你是一名忠实改写助手。",
		rewriteRules: `请按照风格要求改写当前分块。
规则：
1）保留分块中的全部事实、名称、数字和日期。
2）不要添加分块中没有的信息。
3）自然承接已生成前文，不要重复前文。
4）只输出改写后的分块，不要任何前言或说明。`,
		rewriteStrict: "严格保真：上一次改写偏离了原文。请保持每句话的含义，并原样保留所有实体与数字。",
		style:         "风格要求：",
		chunkPosition: "第 %d 块，共 %d 块",
		anchor:        "全局锚点（文档原始开头）：",
		prefix:        "已生成前文（目前改写结果的结尾）：",
		currentChunk:  "当前分块：",

		planIntro: "你正在规划一个长文分节生成任务。",
		planRules: `重要：只输出 JSON 对象，不要输出任何思考、规划或解释文字。
回复必须以 '{' 开头并以 '}' 结尾，不要使用 markdown 代码块。

请构建一个完整的生成计划，包含连贯的章节和明确的覆盖要点。`,
		planFields: "主题：%s\n目标：%s\n受众：%s\n语气：%s\n目标总长度（token）：%d",
		planSchema: "输出结构（只返回符合该结构的 JSON 对象）：",

		sectionIntro: "你正在生成一篇长文中的一个章节。",
		sectionRules: `重要：只输出章节正文，不要思考、规划或前言。
规则：
1）严格遵循计划和当前章节规格。
2）术语、实体和时间线与状态保持一致。
3）避免重复近期文本中已覆盖的要点。
4）只输出当前章节正文，不要 JSON、markdown 或解释。`,
		compressedRules: `重要：只输出章节正文，不要思考、规划或前言。
规则：
1）严格遵循当前章节规格。
2）术语与已知实体保持一致。
3）覆盖下列剩余要点中属于本章节的部分。
4）不要重复已覆盖摘要中的内容。
5）与后续章节保持连贯。`,
		globalPlan:        "全局计划：",
		planContext:       "计划上下文：",
		currentState:      "当前状态：",
		incrementalState:  "增量状态（进度：%s）：",
		recentText:        "近期生成文本：",
		sectionSpec:       "当前章节规格：",
		lengthTolerance:   "目标长度为近似值（允许 ±20%）。",
		sectionOutputOnly: "只输出当前章节正文。",

		repairIntro:       "你正在修订一个已生成章节以修复质量问题。",
		repairAttempt:     "修订次数：%d",
		repairCurrent:     "=== 当前存在问题的文本 ===",
		repairReqs:        "=== 章节要求 ===",
		repairTitle:       "标题：",
		repairTarget:      "目标长度：约 %d token（允许 ±20%%）",
		repairKeyPoints:   "需覆盖的要点：",
		repairEntities:    "必须包含的实体：",
		repairConstraints: "约束：",
		repairIssues:      "=== 发现的问题 ===",
		repairEntity: []string{
			"实体覆盖要求：",
			"必须明确提及每个缺失的实体：",
			"  - 增加一句专门介绍该实体的句子",
			"  - 将其自然融入现有内容",
			"  - 确保名称完全一致（不区分大小写）",
		},
		repairLength: "长度要求：",
		repairExpand: []string{
			"  - 对要点展开更多细节",
			"  - 增加具体示例或解释",
			"  - 阐述影响或背景",
		},
		repairCondense: []string{
			"  - 删除冗余句子",
			"  - 压缩冗长的解释",
			"  - 只聚焦核心要点",
		},
		repairRepetition: []string{
			"重复问题修复：",
			"  - 使用不同的措辞和词汇",
			"  - 聚焦本章节独有的内容",
			"  - 避免复述前文章节的概念",
		},
		repairOther:    "其他需要修复的问题：",
		repairRevision: "=== 修订要求 ===\n1）修复上面列出的全部问题\n2）与已覆盖内容保持一致：",
		repairCovered:  "   已覆盖要点：",
		repairKnown:    "   已知实体：",
		repairTail: `3）尽量保留原有含义和结构
4）只输出修订后的章节正文，不要标签、问题总结、JSON 或代码块。`,

		consistencyIntro: "你正在对已生成长文执行轻量一致性修订。",
		consistencyRules: `重要：只输出修订后的文本，不要思考、规划或前言。
只允许以下修改：
1）修正术语一致性
2）消除与前文章节的矛盾
3）改进过渡衔接
4）为缺失要点补充 1-2 句简短内容
不要大幅改写或改变结构，保留所有数字和日期。`,
		consistencyFindings: "质量发现：",
		consistencyDraft:    "草稿文本：",
		consistencyTail:     "只输出修订后的文本。",

		noneYet:      "暂无",
		pointsRecent: "共 %d 个要点，最近：%s",
	},
}

func textsFor(l PromptLanguage) promptText { return promptTexts[resolveLanguage(l)] }

// RenderRewritePrompt renders one rewrite attempt.
func RenderRewritePrompt(req RewriteRequest) string {
	t := textsFor(req.PromptLanguage)
	parts := []string{t.rewriteIntro, t.rewriteRules}
	if req.StrictFidelity {
		parts = append(parts, t.rewriteStrict)
	}
	parts = append(parts,
		t.style+req.StyleInstruction,
		fmt.Sprintf(t.chunkPosition, req.ChunkIndex+1, req.TotalChunks),
		t.anchor+"\n"+orNone(req.GlobalAnchor, t),
		t.prefix+"\n"+orNone(req.GeneratedPrefix, t),
		t.currentChunk+"\n"+req.CurrentChunk,
	)
	return strings.Join(parts, "\n\n")
}

// PlanRequest is the input to a planning call.
type PlanRequest struct {
	Topic             string
	Objective         string
	Audience          string
	Tone              string
	TargetTotalLength int
}

func (r PlanRequest) withDefaults() PlanRequest {
	if strings.TrimSpace(r.Audience) == "" {
		r.Audience = "general technical audience"
	}
	if strings.TrimSpace(r.Tone) == "" {
		r.Tone = "neutral technical"
	}
	return r
}

func RenderPlanPrompt(lang PromptLanguage, req PlanRequest) string {
	t := textsFor(lang)
	req = req.withDefaults()
	example := GenerationPlan{
		Topic:                  req.Topic,
		Objective:              req.Objective,
		Audience:               req.Audience,
		Tone:                   req.Tone,
		TargetTotalLength:      req.TargetTotalLength,
		NarrativeVoice:         defaultNarrativeVoice,
		DoNotInclude:           []string{"unsupported claims"},
		TerminologyPreferences: map[string]string{"example_term": "preferred phrasing"},
		Sections: []SectionSpec{{
			Title:            "Section title",
			KeyPoints:        []string{"point A", "point B"},
			RequiredEntities: []string{"entity A"},
			Constraints:      []string{"constraint A"},
			TargetLength:     300,
		}},
	}
	return strings.Join([]string{
		t.planIntro,
		t.planRules,
		fmt.Sprintf(t.planFields, req.Topic, req.Objective, req.Audience, req.Tone, req.TargetTotalLength),
		t.planSchema + "\n" + compactJSON(example),
	}, "\n\n")
}

type stateView struct {
	KnownEntities      []string          `json:"known_entities"`
	TerminologyMap     map[string]string `json:"terminology_map"`
	Timeline           []string          `json:"timeline"`
	CoveredKeyPoints   []string          `json:"covered_key_points,omitempty"`
	RemainingKeyPoints []string          `json:"remaining_key_points"`
	Summary            string            `json:"summary,omitempty"`
}

func fullStateView(s *GenerationState) stateView {
	return stateView{
		KnownEntities:      nonNil(s.EntityNames()),
		TerminologyMap:     s.TerminologyMap,
		Timeline:           nonNil(s.Timeline),
		CoveredKeyPoints:   nonNil(s.CoveredKeyPoints),
		RemainingKeyPoints: nonNil(s.RemainingKeyPoints),
		Summary:            s.SummaryText(),
	}
}

// RenderSectionPrompt renders the full section prompt carrying the whole plan and state.
func RenderSectionPrompt(lang PromptLanguage, plan GenerationPlan, state *GenerationState, recent string, spec SectionSpec) string {
	t := textsFor(lang)
	return strings.Join([]string{
		t.sectionIntro,
		t.sectionRules,
		t.globalPlan + "\n" + compactJSON(plan),
		t.currentState + "\n" + compactJSON(fullStateView(state)),
		t.recentText + "\n" + orNone(recent, t),
		t.sectionSpec + "\n" + compactJSON(spec),
		t.lengthTolerance,
	}, "\n\n")
}

type compressedPlanView struct {
	Topic                  string            `json:"topic"`
	Objective              string            `json:"objective"`
	Audience               string            `json:"audience"`
	Tone                   string            `json:"tone"`
	CurrentSection         SectionSpec       `json:"current_section"`
	UpcomingSections       []string          `json:"upcoming_sections"`
	TerminologyPreferences map[string]string `json:"terminology_preferences"`
}

type compressedStateView struct {
	KnownEntities  []string          `json:"known_entities"`
	TerminologyMap map[string]string `json:"terminology_map"`
	Timeline       []string          `json:"timeline"`
	Progress       string            `json:"progress"`
	CoveredSummary string            `json:"covered_summary"`
	Remaining      []string          `json:"remaining_points"`
}

// RenderSectionPromptCompressed renders a section prompt that carries only the current spec,
// a preview of the next titles and a reduced state. Entity and terminology state are kept
// verbatim up to the configured limits.
func RenderSectionPromptCompressed(lang PromptLanguage, plan GenerationPlan, state *GenerationState, spec SectionSpec, recent string, index int, cfg GenerationConfig) string {
	t := textsFor(lang)

	var upcoming []string
	for i := index + 1; i < len(plan.Sections) && i <= index+cfg.UpcomingSectionsPreview; i++ {
		upcoming = append(upcoming, plan.Sections[i].Title)
	}
	planView := compressedPlanView{
		Topic:                  plan.Topic,
		Objective:              plan.Objective,
		Audience:               plan.Audience,
		Tone:                   plan.Tone,
		CurrentSection:         spec,
		UpcomingSections:       nonNil(upcoming),
		TerminologyPreferences: plan.TerminologyPreferences,
	}

	total := len(state.CoveredKeyPoints) + len(state.RemainingKeyPoints)
	progress := fmt.Sprintf("%d/%d", len(state.CoveredKeyPoints), total)
	incremental := compressedStateView{
		KnownEntities:  nonNil(lastN(state.EntityNames(), cfg.MaxEntitiesInPrompt)),
		TerminologyMap: state.TerminologyMap,
		Timeline:       nonNil(lastN(state.Timeline, cfg.MaxTimelineEntries)),
		Progress:       progress,
		CoveredSummary: summarizeCoveredPoints(lang, state.CoveredKeyPoints, cfg.MaxCoveredPointsSummaryItems),
		Remaining:      nonNil(state.RemainingKeyPoints),
	}

	return strings.Join([]string{
		t.sectionIntro,
		t.compressedRules,
		t.planContext + "\n" + indentJSON(planView),
		fmt.Sprintf(t.incrementalState, progress) + "\n" + indentJSON(incremental),
		t.recentText + "\n" + orNone(recent, t),
		t.sectionOutputOnly,
	}, "\n\n")
}

// summarizeCoveredPoints lists up to maxItems covered points, or a count plus the most
// recent ones when there are more.
func summarizeCoveredPoints(lang PromptLanguage, covered []string, maxItems int) string {
	t := textsFor(lang)
	if len(covered) == 0 {
		return t.noneYet
	}
	if maxItems <= 0 || len(covered) <= maxItems {
		return strings.Join(covered, "; ")
	}
	return fmt.Sprintf(t.pointsRecent, len(covered), strings.Join(covered[len(covered)-maxItems:], "; "))
}

// RenderRepairPrompt renders a revision request naming exactly the issues the gate found.
func RenderRepairPrompt(lang PromptLanguage, state *GenerationState, spec SectionSpec, current string, issues []string, retry int) string {
	t := textsFor(lang)
	entity, length, repetition, other := classifyIssues(issues)

	lines := []string{
		t.repairIntro,
		fmt.Sprintf(t.repairAttempt, retry),
		"",
		t.repairCurrent,
		current,
		"",
		t.repairReqs,
		t.repairTitle + spec.Title,
		fmt.Sprintf(t.repairTarget, spec.TargetLength),
		"",
		t.repairKeyPoints,
	}
	lines = append(lines, bullets(spec.KeyPoints)...)
	lines = append(lines, "", t.repairEntities)
	lines = append(lines, bullets(spec.RequiredEntities)...)
	if len(spec.Constraints) > 0 {
		lines = append(lines, "", t.repairConstraints)
		lines = append(lines, bullets(spec.Constraints)...)
	}

	lines = append(lines, "", t.repairIssues)
	if len(entity) > 0 {
		lines = append(lines, "", t.repairEntity[0])
		lines = append(lines, bullets(entity)...)
		lines = append(lines, t.repairEntity[1:]...)
	}
	if len(length) > 0 {
		lines = append(lines, "", t.repairLength)
		lines = append(lines, bullets(length)...)
		if tooShort(length) {
			lines = append(lines, t.repairExpand...)
		} else {
			lines = append(lines, t.repairCondense...)
		}
	}
	if len(repetition) > 0 {
		lines = append(lines, "", t.repairRepetition[0])
		lines = append(lines, bullets(repetition)...)
		lines = append(lines, t.repairRepetition[1:]...)
	}
	if len(other) > 0 {
		lines = append(lines, "", t.repairOther)
		lines = append(lines, bullets(other)...)
	}

	lines = append(lines,
		"",
		t.repairRevision,
		t.repairCovered+strings.Join(state.CoveredKeyPoints, "; "),
		t.repairKnown+strings.Join(state.EntityNames(), ", "),
		t.repairTail,
	)
	return strings.Join(lines, "\n")
}

// classifyIssues sorts gate findings into the categories that get targeted guidance.
func classifyIssues(issues []string) (entity, length, repetition, other []string) {
	for _, issue := range issues {
		l := strings.ToLower(issue)
		switch {
		case strings.Contains(l, "entity") || strings.Contains(l, "missing"):
			entity = append(entity, issue)
		case strings.Contains(l, "length"):
			length = append(length, issue)
		case strings.Contains(l, "repetitive") || strings.Contains(l, "similar"):
			repetition = append(repetition, issue)
		default:
			other = append(other, issue)
		}
	}
	return entity, length, repetition, other
}

func tooShort(issues []string) bool {
	for _, i := range issues {
		l := strings.ToLower(i)
		if strings.Contains(l, "too short") || strings.Contains(l, "below") {
			return true
		}
	}
	return false
}

// RenderConsistencyPrompt asks for a light reconciliation of draft against the state table.
func RenderConsistencyPrompt(lang PromptLanguage, plan GenerationPlan, state *GenerationState, draft string, findings []string) string {
	t := textsFor(lang)
	view := fullStateView(state)
	view.CoveredKeyPoints = nil
	return strings.Join([]string{
		t.consistencyIntro,
		t.consistencyRules,
		t.globalPlan + "\n" + compactJSON(plan),
		t.currentState + "\n" + compactJSON(view),
		t.consistencyFindings + "\n" + compactJSON(nonNil(findings)),
		t.consistencyDraft + "\n" + draft,
		t.consistencyTail,
	}, "\n\n")
}

func orNone(s string, t promptText) string {
	if strings.TrimSpace(s) == "" {
		return t.none
	}
	return s
}

func bullets(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = "  - " + s
	}
	return out
}

func lastN(items []string, n int) []string {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
