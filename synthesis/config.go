package synthesis

// PipelineConfig configures a rephrase run. It is never mutated after construction and may be
// shared by concurrent runs.
type PipelineConfig struct {
	ChunkSize              int            `yaml:"chunk_size" json:"chunk_size"`
	LengthMode             LengthMode     `yaml:"length_mode" json:"length_mode"`
	EnableLineFallback     bool           `yaml:"enable_line_fallback" json:"enable_line_fallback"`
	EnableSentenceFallback bool           `yaml:"enable_sentence_fallback" json:"enable_sentence_fallback"`
	EnableCharFallback     bool           `yaml:"enable_char_fallback" json:"enable_char_fallback"`
	MergeSmallUnits        bool           `yaml:"merge_small_units" json:"merge_small_units"`
	PrefixWindowTokens     int            `yaml:"prefix_window_tokens" json:"prefix_window_tokens"`
	FidelityThreshold      float64        `yaml:"fidelity_threshold" json:"fidelity_threshold"`
	MaxRetries             int            `yaml:"max_retries" json:"max_retries"`
	AnchorTokens           int            `yaml:"anchor_tokens" json:"anchor_tokens"`
	MaxStitchOverlapTokens int            `yaml:"max_stitch_overlap_tokens" json:"max_stitch_overlap_tokens"`
	StitchMatch            StitchMatch    `yaml:"stitch_match" json:"stitch_match"`
	GlobalAnchorMode       AnchorMode     `yaml:"global_anchor_mode" json:"global_anchor_mode"`
	DefaultStyle           string         `yaml:"default_style_instruction" json:"default_style_instruction"`
	PromptLanguage         PromptLanguage `yaml:"prompt_language" json:"prompt_language"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ChunkSize:              1024,
		LengthMode:             LengthAuto,
		EnableLineFallback:     true,
		EnableSentenceFallback: true,
		EnableCharFallback:     true,
		PrefixWindowTokens:     1024,
		FidelityThreshold:      0.85,
		MaxRetries:             2,
		AnchorTokens:           256,
		MaxStitchOverlapTokens: 96,
		StitchMatch:            StitchExact,
		GlobalAnchorMode:       AnchorHead,
		DefaultStyle:           "neutral factual rewrite",
		PromptLanguage:         LanguageEnglish,
	}
}

func (c PipelineConfig) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return &ConfigurationError{Field: "chunk_size", Reason: "must be > 0"}
	case c.PrefixWindowTokens < 0:
		return &ConfigurationError{Field: "prefix_window_tokens", Reason: "must be >= 0"}
	case c.MaxRetries < 0:
		return &ConfigurationError{Field: "max_retries", Reason: "must be >= 0"}
	case c.FidelityThreshold < 0 || c.FidelityThreshold > 1:
		return &ConfigurationError{Field: "fidelity_threshold", Reason: "must be within [0,1]"}
	case c.AnchorTokens < 0:
		return &ConfigurationError{Field: "anchor_tokens", Reason: "must be >= 0"}
	case c.MaxStitchOverlapTokens < 0:
		return &ConfigurationError{Field: "max_stitch_overlap_tokens", Reason: "must be >= 0"}
	}
	switch c.LengthMode {
	case LengthAuto, LengthToken, LengthChar:
	default:
		return &ConfigurationError{Field: "length_mode", Reason: "must be auto, token or char"}
	}
	switch c.GlobalAnchorMode {
	case AnchorHead, AnchorNone:
	default:
		return &ConfigurationError{Field: "global_anchor_mode", Reason: "must be head or none"}
	}
	switch c.StitchMatch {
	case StitchExact, StitchNormalized:
	default:
		return &ConfigurationError{Field: "stitch_match", Reason: "must be exact or normalized"}
	}
	return validateLanguage(c.PromptLanguage)
}

// SplitOptions returns the chunking options implied by the config.
func (c PipelineConfig) SplitOptions() SplitOptions {
	opts := DefaultSplitOptions()
	opts.ChunkSize = c.ChunkSize
	opts.LengthMode = c.LengthMode
	opts.EnableLineFallback = c.EnableLineFallback
	opts.EnableSentenceFallback = c.EnableSentenceFallback
	opts.EnableCharFallback = c.EnableCharFallback
	opts.MergeSmallUnits = c.MergeSmallUnits
	return opts
}

// ConsistencyScope selects where the consistency pass runs.
type ConsistencyScope string

const (
	// ConsistencyPerSection reconciles each provisionally accepted section.
	ConsistencyPerSection ConsistencyScope = "section"
	// ConsistencyDocument runs one pass over the assembled document.
	ConsistencyDocument ConsistencyScope = "document"
)

// GenerationConfig configures a generation run.
type GenerationConfig struct {
	PrefixWindowTokens int `yaml:"prefix_window_tokens" json:"prefix_window_tokens"`

	MinSectionLengthRatio float64 `yaml:"min_section_length_ratio" json:"min_section_length_ratio"`
	MaxSectionLengthRatio float64 `yaml:"max_section_length_ratio" json:"max_section_length_ratio"`

	RepetitionSimilarityThreshold float64 `yaml:"repetition_similarity_threshold" json:"repetition_similarity_threshold"`
	RepetitionNGram               int     `yaml:"repetition_ngram" json:"repetition_ngram"`
	RepetitionNGramThreshold      float64 `yaml:"repetition_ngram_threshold" json:"repetition_ngram_threshold"`
	DriftOverlapThreshold         float64 `yaml:"drift_overlap_threshold" json:"drift_overlap_threshold"`

	ConsistencyPassEnabled bool             `yaml:"consistency_pass_enabled" json:"consistency_pass_enabled"`
	ConsistencyScope       ConsistencyScope `yaml:"consistency_scope" json:"consistency_scope"`
	ConsistencyGuard       EditGuard        `yaml:"consistency_guard" json:"consistency_guard"`

	MaxSectionRetries       int     `yaml:"max_section_retries" json:"max_section_retries"`
	SectionQualityThreshold float64 `yaml:"section_quality_threshold" json:"section_quality_threshold"`
	RetryOnMissingEntities  bool    `yaml:"retry_on_missing_entities" json:"retry_on_missing_entities"`
	RetryOnLengthViolation  bool    `yaml:"retry_on_length_violation" json:"retry_on_length_violation"`
	EntityMissingPenalty    float64 `yaml:"entity_missing_penalty" json:"entity_missing_penalty"`
	LengthViolationPenalty  float64 `yaml:"length_violation_penalty" json:"length_violation_penalty"`
	RepetitionPenalty       float64 `yaml:"repetition_penalty" json:"repetition_penalty"`

	PromptCompressionEnabled     bool `yaml:"prompt_compression_enabled" json:"prompt_compression_enabled"`
	CompressionTriggerTokens     int  `yaml:"compression_trigger_tokens" json:"compression_trigger_tokens"`
	MaxCoveredPointsSummaryItems int  `yaml:"max_covered_points_summary_items" json:"max_covered_points_summary_items"`
	MaxEntitiesInPrompt          int  `yaml:"max_entities_in_prompt" json:"max_entities_in_prompt"`
	MaxTimelineEntries           int  `yaml:"max_timeline_entries" json:"max_timeline_entries"`
	UpcomingSectionsPreview      int  `yaml:"upcoming_sections_preview" json:"upcoming_sections_preview"`

	PromptLanguage PromptLanguage   `yaml:"prompt_language" json:"prompt_language"`
	Params         GenerationParams `yaml:"params" json:"params"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		PrefixWindowTokens:            1200,
		MinSectionLengthRatio:         0.8,
		MaxSectionLengthRatio:         1.2,
		RepetitionSimilarityThreshold: 0.92,
		RepetitionNGram:               3,
		RepetitionNGramThreshold:      0.5,
		DriftOverlapThreshold:         0.05,
		ConsistencyPassEnabled:        true,
		ConsistencyScope:              ConsistencyPerSection,
		ConsistencyGuard:              DefaultEditGuard(),
		MaxSectionRetries:             2,
		SectionQualityThreshold:       0.8,
		RetryOnMissingEntities:        true,
		RetryOnLengthViolation:        false,
		EntityMissingPenalty:          0.2,
		LengthViolationPenalty:        0.1,
		RepetitionPenalty:             0.15,
		PromptCompressionEnabled:      true,
		MaxCoveredPointsSummaryItems:  3,
		MaxEntitiesInPrompt:           20,
		MaxTimelineEntries:            5,
		UpcomingSectionsPreview:       2,
		PromptLanguage:                LanguageEnglish,
		Params:                        GenerationParams{Temperature: 0.4, TopP: 0.9},
	}
}

func (c GenerationConfig) Validate() error {
	switch {
	case c.PrefixWindowTokens < 0:
		return &ConfigurationError{Field: "prefix_window_tokens", Reason: "must be >= 0"}
	case c.MaxSectionRetries < 0:
		return &ConfigurationError{Field: "max_section_retries", Reason: "must be >= 0"}
	case c.SectionQualityThreshold < 0 || c.SectionQualityThreshold > 1:
		return &ConfigurationError{Field: "section_quality_threshold", Reason: "must be within [0,1]"}
	case c.MinSectionLengthRatio < 0 || c.MaxSectionLengthRatio < c.MinSectionLengthRatio:
		return &ConfigurationError{Field: "section_length_ratio", Reason: "needs 0 <= min <= max"}
	case c.RepetitionNGram < 1:
		return &ConfigurationError{Field: "repetition_ngram", Reason: "must be >= 1"}
	case c.ConsistencyGuard.MinLengthRatio > c.ConsistencyGuard.MaxLengthRatio:
		return &ConfigurationError{Field: "consistency_guard", Reason: "min_length_ratio exceeds max_length_ratio"}
	}
	switch c.ConsistencyScope {
	case ConsistencyPerSection, ConsistencyDocument:
	default:
		return &ConfigurationError{Field: "consistency_scope", Reason: "must be section or document"}
	}
	return validateLanguage(c.PromptLanguage)
}

func validateLanguage(l PromptLanguage) error {
	switch l {
	case LanguageEnglish, LanguageChinese:
		return nil
	}
	return &ConfigurationError{Field: "prompt_language", Reason: "must be en or zh"}
}
