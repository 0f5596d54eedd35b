package synthesis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenizer measures and slices text in the pipeline's length unit.
type Tokenizer interface {
	Encode(text string) []string
	Decode(tokens []string) string
	Count(text string) int
}

// Span is one token with its byte offsets in the text it came from.
type Span struct {
	Token string
	Start int
	End   int
}

// SpanTokenizer is implemented by tokenizers that can report token offsets.
// Stitching uses it to cut overlaps out of the original text instead of re-joining tokens.
type SpanTokenizer interface {
	Tokenizer
	Spans(text string) []Span
}

// WhitespaceTokenizer splits on Unicode whitespace. It is the deterministic default.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Encode(text string) []string {
	return strings.Fields(text)
}

func (WhitespaceTokenizer) Decode(tokens []string) string {
	return strings.Join(tokens, " ")
}

func (WhitespaceTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func (WhitespaceTokenizer) Spans(text string) []Span {
	var spans []Span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, Span{Token: text[start:i], Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, Span{Token: text[start:], Start: start, End: len(text)})
	}
	return spans
}

// TakeLastTokens keeps the last maxTokens tokens of text.
func TakeLastTokens(text string, tok Tokenizer, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	tokens := tok.Encode(text)
	if len(tokens) <= maxTokens {
		return tok.Decode(tokens)
	}
	return tok.Decode(tokens[len(tokens)-maxTokens:])
}

// TakeFirstTokens keeps the first maxTokens tokens of text.
func TakeFirstTokens(text string, tok Tokenizer, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	tokens := tok.Encode(text)
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	return tok.Decode(tokens)
}

func runeCount(s string) int {
	return utf8.RuneCountInString(s)
}
