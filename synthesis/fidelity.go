package synthesis

import (
	"fmt"
	"math"
	"strings"
)

// FidelityScore is a verifier's verdict on one rewritten chunk.
type FidelityScore struct {
	Value  float64  `json:"value"`
	Issues []string `json:"issues,omitempty"`
}

// FidelityVerifier scores how well a rewrite preserves its source chunk.
type FidelityVerifier interface {
	Score(source, rewritten string) FidelityScore
}

// NoOpVerifier accepts everything.
type NoOpVerifier struct{}

func (NoOpVerifier) Score(string, string) FidelityScore { return FidelityScore{Value: 1} }

// TokenJaccardVerifier is the set Jaccard similarity over tokenizer tokens.
type TokenJaccardVerifier struct {
	Tokenizer Tokenizer
}

func (v TokenJaccardVerifier) Score(source, rewritten string) FidelityScore {
	tok := v.Tokenizer
	if tok == nil {
		tok = WhitespaceTokenizer{}
	}
	return FidelityScore{Value: jaccard(tokenSet(tok, source), tokenSet(tok, rewritten))}
}

func tokenSet(tok Tokenizer, text string) map[string]struct{} {
	toks := tok.Encode(text)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

// WeightedVerifier is one member of a CompositeVerifier.
type WeightedVerifier struct {
	Verifier FidelityVerifier
	Weight   float64
}

// CompositeVerifier is the weighted mean of its members; issues are concatenated in order.
type CompositeVerifier struct {
	Members []WeightedVerifier
}

func (c CompositeVerifier) Score(source, rewritten string) FidelityScore {
	var total, weights float64
	var issues []string
	for _, m := range c.Members {
		if m.Verifier == nil || m.Weight <= 0 {
			continue
		}
		s := m.Verifier.Score(source, rewritten)
		total += s.Value * m.Weight
		weights += m.Weight
		issues = append(issues, s.Issues...)
	}
	if weights == 0 {
		return FidelityScore{Value: 1, Issues: issues}
	}
	return FidelityScore{Value: math.Min(1, math.Max(0, total/weights)), Issues: issues}
}

// DefaultFidelityVerifier blends lexical overlap with numeric-fact preservation.
func DefaultFidelityVerifier(tok Tokenizer) FidelityVerifier {
	return CompositeVerifier{Members: []WeightedVerifier{
		{Verifier: TokenJaccardVerifier{Tokenizer: tok}, Weight: 0.7},
		{Verifier: NewNumericFactChecker(0.25), Weight: 0.3},
	}}
}

// NewFidelityVerifier selects a built-in verifier by name: none, jaccard, numeric or composite.
func NewFidelityVerifier(name string, tok Tokenizer) (FidelityVerifier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "composite":
		return DefaultFidelityVerifier(tok), nil
	case "none":
		return NoOpVerifier{}, nil
	case "jaccard":
		return TokenJaccardVerifier{Tokenizer: tok}, nil
	case "numeric":
		return NewNumericFactChecker(0.25), nil
	}
	return nil, &ConfigurationError{Field: "verifier", Reason: fmt.Sprintf("unknown verifier %q", name)}
}
