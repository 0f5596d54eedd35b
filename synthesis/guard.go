package synthesis

import (
	"regexp"
	"strings"
)

var sentenceSplit = regexp.MustCompile(`[.!?。！？]+`)

// EditGuard bounds how far a consistency revision may move away from the draft it revises.
type EditGuard struct {
	MinTokenJaccard   float64 `yaml:"min_token_jaccard" json:"min_token_jaccard"`
	MinLengthRatio    float64 `yaml:"min_length_ratio" json:"min_length_ratio"`
	MaxLengthRatio    float64 `yaml:"max_length_ratio" json:"max_length_ratio"`
	MaxAddedSentences int     `yaml:"max_added_sentences" json:"max_added_sentences"`
}

func DefaultEditGuard() EditGuard {
	return EditGuard{
		MinTokenJaccard:   0.75,
		MinLengthRatio:    0.7,
		MaxLengthRatio:    1.3,
		MaxAddedSentences: 2,
	}
}

// Apply returns the text to keep and whether the guard fell back to the original.
func (g EditGuard) Apply(original, candidate string) (string, bool) {
	original = strings.TrimSpace(original)
	candidate = strings.TrimSpace(candidate)
	if original == "" {
		return candidate, false
	}
	if candidate == "" {
		return original, true
	}
	if tokenJaccard(original, candidate) < g.MinTokenJaccard {
		return original, true
	}

	ratio := float64(len(wordList(candidate))) / float64(max(len(wordList(original)), 1))
	if ratio < g.MinLengthRatio || ratio > g.MaxLengthRatio {
		return original, true
	}
	if countSentences(candidate)-countSentences(original) > g.MaxAddedSentences {
		return original, true
	}
	return candidate, false
}

func countSentences(text string) int {
	n := 0
	for _, part := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}
