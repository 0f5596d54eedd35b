package synthesis

import (
	"fmt"
	"regexp"
	"strings"
)

var entityPattern = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_-]{2,}\b`)

// EntityEntry is one known entity in the state ledger.
type EntityEntry struct {
	Name         string `json:"name"`
	Count        int    `json:"count"`
	FirstSection int    `json:"first_section"`
	LastSection  int    `json:"last_section"`
}

// SectionStatus is the terminal state of a generated section.
type SectionStatus string

const (
	SectionAccepted             SectionStatus = "ACCEPTED"
	SectionAcceptedWithWarnings SectionStatus = "FAILED_ACCEPTED_WITH_WARNINGS"
)

// SectionRecord is the per-section acceptance history kept in the state table.
type SectionRecord struct {
	Index             int           `json:"index"`
	Title             string        `json:"title"`
	Attempts          int           `json:"attempts"`
	Status            SectionStatus `json:"status"`
	Score             float64       `json:"score"`
	ConsistencyPassed bool          `json:"consistency_pass_applied"`
}

// GenerationState is the forward-only table a run carries across sections. Updates only add;
// nothing recorded for an earlier section is ever removed.
type GenerationState struct {
	Entities           []EntityEntry     `json:"known_entities"`
	TerminologyMap     map[string]string `json:"terminology_map"`
	Timeline           []string          `json:"timeline"`
	CoveredKeyPoints   []string          `json:"covered_key_points"`
	RemainingKeyPoints []string          `json:"remaining_key_points"`
	Summary            []string          `json:"summary"`
	History            []SectionRecord   `json:"history"`

	entityIndex map[string]int
}

// NewGenerationState seeds the remaining key points from the plan.
func NewGenerationState(plan GenerationPlan) *GenerationState {
	return &GenerationState{
		TerminologyMap:     map[string]string{},
		RemainingKeyPoints: plan.AllKeyPoints(),
		entityIndex:        map[string]int{},
	}
}

// EntityNames returns known entity names in first-seen order.
func (s *GenerationState) EntityNames() []string {
	out := make([]string, len(s.Entities))
	for i, e := range s.Entities {
		out[i] = e.Name
	}
	return out
}

// HasEntity reports whether name is already known, ignoring case.
func (s *GenerationState) HasEntity(name string) bool {
	_, ok := s.entityIndex[normalizeEntityKey(name)]
	return ok
}

// Update folds an accepted section into the state.
func (s *GenerationState) Update(index int, text string, spec SectionSpec, plan GenerationPlan) {
	s.mergeEntities(extractEntities(text, spec), index)

	lower := strings.ToLower(text)
	for term, preferred := range plan.TerminologyPreferences {
		if strings.Contains(lower, strings.ToLower(preferred)) || strings.Contains(lower, strings.ToLower(term)) {
			s.TerminologyMap[term] = preferred
		}
	}

	s.Timeline = mergeUnique(s.Timeline, yearPattern.FindAllString(text, -1)...)

	var covered []string
	for _, kp := range spec.KeyPoints {
		if !keyPointCovered(kp, text) {
			continue
		}
		covered = append(covered, kp)
		if !containsString(s.CoveredKeyPoints, kp) {
			s.CoveredKeyPoints = append(s.CoveredKeyPoints, kp)
		}
		s.RemainingKeyPoints = removeString(s.RemainingKeyPoints, kp)
	}

	line := spec.Title + ": "
	if len(covered) == 0 {
		line += "(no key points detected)"
	} else {
		line += strings.Join(covered, "; ")
	}
	s.Summary = append(s.Summary, line)
}

// Record appends a section's acceptance history entry.
func (s *GenerationState) Record(r SectionRecord) {
	s.History = append(s.History, r)
}

// SummaryText renders the running summary, one line per accepted section.
func (s *GenerationState) SummaryText() string {
	return strings.Join(s.Summary, "\n")
}

// Snapshot returns a deep copy safe to hand to callers after the run.
func (s *GenerationState) Snapshot() GenerationState {
	out := GenerationState{
		Entities:           append([]EntityEntry(nil), s.Entities...),
		TerminologyMap:     make(map[string]string, len(s.TerminologyMap)),
		Timeline:           append([]string(nil), s.Timeline...),
		CoveredKeyPoints:   append([]string(nil), s.CoveredKeyPoints...),
		RemainingKeyPoints: append([]string(nil), s.RemainingKeyPoints...),
		Summary:            append([]string(nil), s.Summary...),
		History:            append([]SectionRecord(nil), s.History...),
		entityIndex:        make(map[string]int, len(s.entityIndex)),
	}
	for k, v := range s.TerminologyMap {
		out.TerminologyMap[k] = v
	}
	for k, v := range s.entityIndex {
		out.entityIndex[k] = v
	}
	return out
}

// mergeEntities bumps counts for known names and appends new ones, keeping first-seen order.
func (s *GenerationState) mergeEntities(names []string, section int) {
	if s.entityIndex == nil {
		s.entityIndex = make(map[string]int, len(s.Entities))
		for i, e := range s.Entities {
			s.entityIndex[normalizeEntityKey(e.Name)] = i
		}
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		key := normalizeEntityKey(name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if i, ok := s.entityIndex[key]; ok {
			e := &s.Entities[i]
			e.Count++
			e.LastSection = section
			continue
		}
		s.Entities = append(s.Entities, EntityEntry{
			Name:         strings.TrimSpace(name),
			Count:        1,
			FirstSection: section,
			LastSection:  section,
		})
		s.entityIndex[key] = len(s.Entities) - 1
	}
}

func extractEntities(text string, spec SectionSpec) []string {
	found := entityPattern.FindAllString(text, -1)
	for _, e := range spec.RequiredEntities {
		if entityPresent(e, text) {
			found = append(found, e)
		}
	}
	return mergeUnique(nil, found...)
}

// keyPointCovered accepts a substring match, or enough shared words: one for a single-word
// point, two otherwise.
func keyPointCovered(point, text string) bool {
	p := strings.ToLower(strings.TrimSpace(point))
	if p == "" || strings.Contains(strings.ToLower(text), p) {
		return true
	}
	pw := wordSet(point)
	if len(pw) == 0 {
		return true
	}
	need := 2
	if len(pw) == 1 {
		need = 1
	}
	return overlapCount(pw, wordSet(text)) >= need
}

func normalizeEntityKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func containsString(items []string, v string) bool {
	for _, s := range items {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(items []string, v string) []string {
	out := items[:0]
	for _, s := range items {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func (r SectionRecord) String() string {
	return fmt.Sprintf("#%d %q %s attempts=%d score=%.2f", r.Index+1, r.Title, r.Status, r.Attempts, r.Score)
}
