package synthesis

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// StitchMatch selects how boundary tokens are compared when looking for overlap.
type StitchMatch string

const (
	// StitchExact compares token sequences byte for byte.
	StitchExact StitchMatch = "exact"
	// StitchNormalized compares case-folded, NFKC-normalized tokens with edge punctuation removed.
	StitchNormalized StitchMatch = "normalized"
)

// StitchOptions bounds overlap detection between consecutive parts.
type StitchOptions struct {
	MaxOverlapTokens int
	Match            StitchMatch
}

// StitchPart is one rewritten unit plus the boundary that followed it in the source.
type StitchPart struct {
	Text      string
	Separator string
}

// StitchTexts joins parts with a single space boundary.
func StitchTexts(texts []string, tok Tokenizer, opts StitchOptions) string {
	parts := make([]StitchPart, len(texts))
	for i, t := range texts {
		parts[i] = StitchPart{Text: t, Separator: " "}
	}
	return Stitch(parts, tok, opts)
}

// Stitch reassembles parts in order. Where the tail of the text so far repeats at the head
// of the next part, one copy of the longest such span (up to MaxOverlapTokens) is dropped.
// Without an overlap the previous part's separator is used as the boundary.
func Stitch(parts []StitchPart, tok Tokenizer, opts StitchOptions) string {
	if len(parts) == 0 {
		return ""
	}
	if tok == nil {
		tok = WhitespaceTokenizer{}
	}
	st, ok := tok.(SpanTokenizer)
	if !ok {
		return stitchTokens(parts, tok, opts)
	}

	eq := tokenEqualFunc(opts.Match)
	var b strings.Builder
	var tail []string

	appendText := func(s string) {
		b.WriteString(s)
		tail = keepLast(append(tail, tok.Encode(s)...), opts.MaxOverlapTokens)
	}

	appendText(strings.TrimSpace(parts[0].Text))
	for i := 1; i < len(parts); i++ {
		text := strings.TrimSpace(parts[i].Text)
		if text == "" {
			continue
		}
		spans := st.Spans(text)
		right := make([]string, len(spans))
		for j, sp := range spans {
			right[j] = sp.Token
		}

		// A cut inside a token: the join glues the two halves into one token, so there is
		// no boundary to deduplicate across.
		if boundary(parts[i-1].Separator) == "" && b.Len() > 0 {
			b.WriteString(text)
			tail = keepLast(gluedTokens(tail, right), opts.MaxOverlapTokens)
			continue
		}

		k := LongestOverlap(tail, right, opts.MaxOverlapTokens, eq)
		if k > 0 {
			rest := text[spans[k-1].End:]
			if strings.TrimSpace(rest) != "" {
				appendText(rest)
			}
			continue
		}
		if b.Len() > 0 {
			b.WriteString(boundary(parts[i-1].Separator))
		}
		appendText(text)
	}
	return strings.TrimSpace(b.String())
}

// stitchTokens is the fallback for tokenizers without offsets: tokens are merged and decoded.
func stitchTokens(parts []StitchPart, tok Tokenizer, opts StitchOptions) string {
	eq := tokenEqualFunc(opts.Match)
	merged := tok.Encode(parts[0].Text)
	for _, p := range parts[1:] {
		right := tok.Encode(p.Text)
		k := LongestOverlap(merged, right, opts.MaxOverlapTokens, eq)
		merged = append(merged, right[k:]...)
	}
	return strings.TrimSpace(tok.Decode(merged))
}

// LongestOverlap returns the largest k <= maxOverlap such that the last k tokens of left equal
// the first k tokens of right. Sizes are tried from largest to smallest, so ties cannot arise
// and the earliest (longest) match wins.
func LongestOverlap(left, right []string, maxOverlap int, eq func(a, b string) bool) int {
	if eq == nil {
		eq = func(a, b string) bool { return a == b }
	}
	maxSize := min(len(left), len(right), maxOverlap)
	for size := maxSize; size > 0; size-- {
		if sequenceEqual(left[len(left)-size:], right[:size], eq) {
			return size
		}
	}
	return 0
}

func sequenceEqual(a, b []string, eq func(a, b string) bool) bool {
	for i := range a {
		if !eq(a[i], b[i]) {
			return false
		}
	}
	return true
}

func tokenEqualFunc(m StitchMatch) func(a, b string) bool {
	if m == StitchNormalized {
		return func(a, b string) bool { return normalizeToken(a) == normalizeToken(b) }
	}
	return func(a, b string) bool { return a == b }
}

func normalizeToken(s string) string {
	s = norm.NFKC.String(s)
	s = strings.TrimFunc(s, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
	return cases.Fold().String(s)
}

// boundary keeps paragraph and line breaks and collapses everything else to one space.
// An empty separator (a cut inside a token) stays empty.
func boundary(sep string) string {
	switch {
	case sep == "":
		return ""
	case strings.Count(sep, "\n") >= 2:
		return "\n\n"
	case strings.Contains(sep, "\n"):
		return "\n"
	default:
		return " "
	}
}

// gluedTokens joins left and right with no boundary between them.
func gluedTokens(left, right []string) []string {
	if len(left) == 0 || len(right) == 0 {
		return append(append([]string(nil), left...), right...)
	}
	out := make([]string, 0, len(left)+len(right)-1)
	out = append(out, left[:len(left)-1]...)
	out = append(out, left[len(left)-1]+right[0])
	return append(out, right[1:]...)
}

func keepLast(tokens []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(tokens) <= n {
		return tokens
	}
	return append([]string(nil), tokens[len(tokens)-n:]...)
}
