package synthesis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis/fileutils"
)

const defaultNarrativeVoice = "third-person"

// SectionSpec is one planned section. Order in the plan is generation order.
type SectionSpec struct {
	Title            string   `json:"title" yaml:"title" jsonschema:"description=Section heading"`
	KeyPoints        []string `json:"key_points" yaml:"key_points" jsonschema:"description=Points the section must cover"`
	RequiredEntities []string `json:"required_entities" yaml:"required_entities" jsonschema:"description=Names that must appear verbatim"`
	Constraints      []string `json:"constraints" yaml:"constraints"`
	TargetLength     int      `json:"target_length" yaml:"target_length" jsonschema:"description=Approximate length in tokens"`
}

// GenerationPlan drives a generation run. It is not modified once a run starts.
type GenerationPlan struct {
	Topic                  string            `json:"topic" yaml:"topic"`
	Objective              string            `json:"objective" yaml:"objective"`
	Audience               string            `json:"audience" yaml:"audience"`
	Tone                   string            `json:"tone" yaml:"tone"`
	TargetTotalLength      int               `json:"target_total_length" yaml:"target_total_length"`
	NarrativeVoice         string            `json:"narrative_voice" yaml:"narrative_voice"`
	DoNotInclude           []string          `json:"do_not_include" yaml:"do_not_include"`
	TerminologyPreferences map[string]string `json:"terminology_preferences" yaml:"terminology_preferences"`
	Sections               []SectionSpec     `json:"sections" yaml:"sections"`
}

// Normalize trims every field, drops blank list items and applies defaults. The receiver is
// left untouched.
func (p GenerationPlan) Normalize() GenerationPlan {
	out := GenerationPlan{
		Topic:             strings.TrimSpace(p.Topic),
		Objective:         strings.TrimSpace(p.Objective),
		Audience:          strings.TrimSpace(p.Audience),
		Tone:              strings.TrimSpace(p.Tone),
		TargetTotalLength: p.TargetTotalLength,
		NarrativeVoice:    strings.TrimSpace(p.NarrativeVoice),
		DoNotInclude:      cleanList(p.DoNotInclude),
	}
	if out.NarrativeVoice == "" {
		out.NarrativeVoice = defaultNarrativeVoice
	}
	if len(p.TerminologyPreferences) > 0 {
		out.TerminologyPreferences = make(map[string]string, len(p.TerminologyPreferences))
		for k, v := range p.TerminologyPreferences {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k != "" && v != "" {
				out.TerminologyPreferences[k] = v
			}
		}
	}
	out.Sections = make([]SectionSpec, 0, len(p.Sections))
	for _, s := range p.Sections {
		out.Sections = append(out.Sections, SectionSpec{
			Title:            strings.TrimSpace(s.Title),
			KeyPoints:        cleanList(s.KeyPoints),
			RequiredEntities: cleanList(s.RequiredEntities),
			Constraints:      cleanList(s.Constraints),
			TargetLength:     s.TargetLength,
		})
	}
	return out
}

func (p GenerationPlan) Validate() error {
	switch {
	case strings.TrimSpace(p.Topic) == "":
		return &PlanValidationError{Field: "topic", Reason: "must not be empty"}
	case strings.TrimSpace(p.Objective) == "":
		return &PlanValidationError{Field: "objective", Reason: "must not be empty"}
	case p.TargetTotalLength <= 0:
		return &PlanValidationError{Field: "target_total_length", Reason: "must be positive"}
	case len(p.Sections) == 0:
		return &PlanValidationError{Field: "sections", Reason: "must include at least one section"}
	}
	for i, s := range p.Sections {
		field := fmt.Sprintf("sections[%d]", i)
		switch {
		case strings.TrimSpace(s.Title) == "":
			return &PlanValidationError{Field: field + ".title", Reason: "must not be empty"}
		case s.TargetLength <= 0:
			return &PlanValidationError{Field: field + ".target_length", Reason: "must be positive"}
		case len(cleanList(s.KeyPoints)) == 0:
			return &PlanValidationError{Field: field + ".key_points", Reason: "must not be empty"}
		}
	}
	return nil
}

// AllKeyPoints returns every distinct key point in plan order.
func (p GenerationPlan) AllKeyPoints() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range p.Sections {
		for _, kp := range s.KeyPoints {
			if _, ok := seen[kp]; ok {
				continue
			}
			seen[kp] = struct{}{}
			out = append(out, kp)
		}
	}
	return out
}

// ParsePlan decodes a plan from raw model output, then normalizes and validates it.
func ParsePlan(raw string) (GenerationPlan, error) {
	var p GenerationPlan
	if err := fileutils.DecodeModelJSON(raw, &p); err != nil {
		return GenerationPlan{}, &PlanValidationError{Reason: "cannot decode model output", Err: err}
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return GenerationPlan{}, err
	}
	return p, nil
}

// LoadPlanFile reads a manual plan from a .json, .yaml or .yml file.
func LoadPlanFile(path string) (GenerationPlan, error) {
	if path == "" {
		return GenerationPlan{}, errors.New("LoadPlanFile: path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return GenerationPlan{}, fmt.Errorf("LoadPlanFile: read file: %w", err)
	}
	var p GenerationPlan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &p); err != nil {
			return GenerationPlan{}, &PlanValidationError{Reason: "cannot parse yaml", Err: err}
		}
	case ".json":
		if err := fileutils.DecodeModelJSON(string(b), &p); err != nil {
			return GenerationPlan{}, &PlanValidationError{Reason: "cannot parse json", Err: err}
		}
	default:
		return GenerationPlan{}, fmt.Errorf("LoadPlanFile: unsupported extension %q", filepath.Ext(path))
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return GenerationPlan{}, err
	}
	return p, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
