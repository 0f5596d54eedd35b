package synthesis

import (
	"fmt"
	"math"
	"strings"
)

const minTokensForDrift = 8

// SectionScore is the gate verdict recorded for one accepted section.
type SectionScore struct {
	Index    int      `json:"index"`
	Title    string   `json:"title"`
	Score    float64  `json:"score"`
	Attempts int      `json:"attempts"`
	Issues   []string `json:"issues,omitempty"`
}

// QualityReport aggregates the findings of a generation run. It is the caller's only quality
// signal; a non-empty report never means the document is incomplete.
type QualityReport struct {
	CoverageMissing             []string       `json:"coverage_missing"`
	KeyPointsMissing            []string       `json:"key_points_missing"`
	TerminologyIssues           []string       `json:"terminology_issues"`
	RepetitionIssues            []string       `json:"repetition_issues"`
	DriftIssues                 []string       `json:"drift_issues"`
	SectionWarnings             []string       `json:"section_warnings"`
	EntityMissing               []string       `json:"entity_missing"`
	NumericFactIssues           []string       `json:"numeric_fact_issues"`
	ConsistencyPassApplied      bool           `json:"consistency_pass_applied"`
	ConsistencyPassUsedFallback bool           `json:"consistency_pass_used_fallback"`
	SectionScores               []SectionScore `json:"section_scores"`
}

func (r QualityReport) HasIssues() bool {
	return len(r.CoverageMissing) > 0 || len(r.TerminologyIssues) > 0 ||
		len(r.RepetitionIssues) > 0 || len(r.DriftIssues) > 0
}

// HasCriticalIssues reports missing required entities or numeric facts lost in revision.
func (r QualityReport) HasCriticalIssues() bool {
	return len(r.EntityMissing) > 0 || len(r.NumericFactIssues) > 0
}

// SectionVerdict is the gate's decision on one draft.
type SectionVerdict struct {
	// Score counts only entity, length and repetition penalties; terminology and drift findings are advisory.
	Score             float64
	MissingEntities   []string
	LengthIssue       string
	RepetitionIssue   string
	TerminologyIssues []string
	DriftIssue        string

	// Accepted is "no missing entities AND score >= threshold".
	Accepted bool
	// Retryable is true when a rejected draft has at least one issue the config allows to repair.
	Retryable bool
}

// Issues lists every finding in repair-prompt order.
func (v SectionVerdict) Issues() []string {
	var out []string
	for _, e := range v.MissingEntities {
		out = append(out, fmt.Sprintf("Missing required entity: '%s'", e))
	}
	if v.LengthIssue != "" {
		out = append(out, v.LengthIssue)
	}
	if v.RepetitionIssue != "" {
		out = append(out, v.RepetitionIssue)
	}
	out = append(out, v.TerminologyIssues...)
	if v.DriftIssue != "" {
		out = append(out, v.DriftIssue)
	}
	return out
}

// Rejection converts a failed verdict into the error that drives the retry loop.
func (v SectionVerdict) Rejection(index int) *QualityGateRejection {
	if v.Accepted {
		return nil
	}
	return &QualityGateRejection{Unit: index, Score: v.Score, Issues: v.Issues()}
}

// QualityGate runs the per-section and whole-document checks.
type QualityGate struct {
	Config    GenerationConfig
	Tokenizer Tokenizer
}

// CheckSection scores one draft against its spec, the state built from earlier sections and
// their accepted text.
func (g QualityGate) CheckSection(plan GenerationPlan, state *GenerationState, spec SectionSpec, text string, prior []string) SectionVerdict {
	cfg := g.Config
	var v SectionVerdict

	v.MissingEntities = missingEntities(spec, text)

	if spec.TargetLength > 0 {
		n := AdaptiveLength(text, g.tokenizer(), LengthAuto)
		lo := int(math.Floor(float64(spec.TargetLength) * cfg.MinSectionLengthRatio))
		hi := int(math.Ceil(float64(spec.TargetLength) * cfg.MaxSectionLengthRatio))
		switch {
		case n < lo:
			v.LengthIssue = fmt.Sprintf("Section length too short: %d tokens, below minimum %d (target %d)", n, lo, spec.TargetLength)
		case n > hi:
			v.LengthIssue = fmt.Sprintf("Section length too long: %d tokens, above maximum %d (target %d)", n, hi, spec.TargetLength)
		}
	}

	if len(prior) > 0 {
		overlap := ngramOverlap(text, strings.Join(prior, "\n"), cfg.RepetitionNGram)
		if overlap > cfg.RepetitionNGramThreshold {
			v.RepetitionIssue = fmt.Sprintf("Section is repetitive: %d-gram overlap %.2f with prior sections", cfg.RepetitionNGram, overlap)
		}
	}

	if state != nil {
		v.TerminologyIssues = terminologyIssues(plan, text, state.TerminologyMap)
	}

	if overlap, ok := planOverlap(plan, text); ok && overlap < cfg.DriftOverlapThreshold {
		v.DriftIssue = fmt.Sprintf("Section may drift from plan topics (overlap=%.2f)", overlap)
	}

	score := 1 - float64(len(v.MissingEntities))*cfg.EntityMissingPenalty
	if v.LengthIssue != "" {
		score -= cfg.LengthViolationPenalty
	}
	if v.RepetitionIssue != "" {
		score -= cfg.RepetitionPenalty
	}
	v.Score = math.Max(0, math.Min(1, score))

	v.Accepted = len(v.MissingEntities) == 0 && v.Score >= cfg.SectionQualityThreshold
	if !v.Accepted {
		v.Retryable = (len(v.MissingEntities) > 0 && cfg.RetryOnMissingEntities) ||
			(v.LengthIssue != "" && cfg.RetryOnLengthViolation) ||
			v.RepetitionIssue != ""
	}
	return v
}

// CheckDocument adds the whole-document findings to report.
func (g QualityGate) CheckDocument(plan GenerationPlan, sections []string, report *QualityReport) {
	full := strings.Join(sections, "\n\n")

	for i, spec := range plan.Sections {
		if i >= len(sections) {
			break
		}
		for _, e := range missingEntities(spec, sections[i]) {
			report.EntityMissing = append(report.EntityMissing,
				fmt.Sprintf("Section %d ('%s') missing required entity: '%s'", i+1, spec.Title, e))
			report.CoverageMissing = mergeUnique(report.CoverageMissing, e)
		}
	}

	for _, kp := range plan.AllKeyPoints() {
		if !keyPointCovered(kp, full) {
			report.KeyPointsMissing = append(report.KeyPointsMissing, kp)
		}
	}

	report.TerminologyIssues = mergeUnique(report.TerminologyIssues, terminologyIssues(plan, full, nil)...)

	for i := 1; i < len(sections); i++ {
		if s := tokenJaccard(sections[i-1], sections[i]); s >= g.Config.RepetitionSimilarityThreshold {
			report.RepetitionIssues = append(report.RepetitionIssues,
				fmt.Sprintf("Section %d and section %d are highly repetitive (score=%.2f).", i, i+1, s))
		}
	}

	for i, text := range sections {
		if overlap, ok := planOverlap(plan, text); ok && overlap < g.Config.DriftOverlapThreshold {
			report.DriftIssues = append(report.DriftIssues,
				fmt.Sprintf("Section %d may drift from plan topics (overlap=%.2f).", i+1, overlap))
		}
	}

	if plan.TargetTotalLength > 0 {
		n := AdaptiveLength(full, g.tokenizer(), LengthAuto)
		floor := int(math.Floor(float64(plan.TargetTotalLength) * g.Config.MinSectionLengthRatio))
		if n < floor {
			report.SectionWarnings = append(report.SectionWarnings,
				fmt.Sprintf("Document length %d is below minimum %d (target %d)", n, floor, plan.TargetTotalLength))
		}
	}
}

func (g QualityGate) tokenizer() Tokenizer {
	if g.Tokenizer == nil {
		return WhitespaceTokenizer{}
	}
	return g.Tokenizer
}

func missingEntities(spec SectionSpec, text string) []string {
	var out []string
	for _, e := range spec.RequiredEntities {
		if !entityPresent(e, text) {
			out = append(out, e)
		}
	}
	return out
}

// entityPresent matches case-insensitively, accepting hyphen or underscore joins and
// multi-word names whose words appear in order.
func entityPresent(entity, text string) bool {
	e := strings.ToLower(strings.TrimSpace(entity))
	if e == "" {
		return true
	}
	t := strings.ToLower(text)
	if strings.Contains(t, e) ||
		strings.Contains(t, strings.ReplaceAll(e, " ", "-")) ||
		strings.Contains(t, strings.ReplaceAll(e, " ", "_")) {
		return true
	}
	if words := strings.Fields(e); len(words) > 1 && wordsInOrder(words, t) {
		return true
	}
	return containsFolded(text, entity)
}

// terminologyIssues flags a source term used without its preferred form. With established
// non-nil, only terms already recorded in the state are checked.
func terminologyIssues(plan GenerationPlan, text string, established map[string]string) []string {
	var out []string
	lower := strings.ToLower(text)
	for _, term := range sortedKeys(plan.TerminologyPreferences) {
		preferred := plan.TerminologyPreferences[term]
		tl, pl := strings.ToLower(term), strings.ToLower(preferred)
		if tl == pl {
			continue
		}
		if established != nil {
			if _, ok := established[term]; !ok {
				continue
			}
		}
		if strings.Contains(lower, tl) && !strings.Contains(lower, pl) {
			out = append(out, fmt.Sprintf("Prefer '%s' over '%s'.", preferred, term))
		}
	}
	return out
}

// planOverlap is the share of the section's words that appear anywhere in the plan. ok is
// false for sections too short to judge.
func planOverlap(plan GenerationPlan, text string) (float64, bool) {
	words := wordSet(text)
	if len(words) < minTokensForDrift {
		return 0, false
	}
	return float64(overlapCount(words, planVocabulary(plan))) / float64(len(words)), true
}

func planVocabulary(plan GenerationPlan) map[string]struct{} {
	var b strings.Builder
	for _, s := range []string{plan.Topic, plan.Objective, plan.Audience} {
		b.WriteString(s + " ")
	}
	for _, s := range plan.Sections {
		b.WriteString(s.Title + " ")
		b.WriteString(strings.Join(s.KeyPoints, " ") + " ")
		b.WriteString(strings.Join(s.RequiredEntities, " ") + " ")
	}
	for k, v := range plan.TerminologyPreferences {
		b.WriteString(k + " " + v + " ")
	}
	return wordSet(b.String())
}
