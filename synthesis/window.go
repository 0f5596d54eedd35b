package synthesis

import "strings"

// AnchorMode controls whether the document head is carried into every rewrite request.
type AnchorMode string

const (
	AnchorHead AnchorMode = "head"
	AnchorNone AnchorMode = "none"
)

// RollingPrefix returns the last windowTokens tokens of the accepted units joined by spaces.
// It is a pure function of its inputs.
func RollingPrefix(accepted []string, tok Tokenizer, windowTokens int) string {
	if len(accepted) == 0 || windowTokens <= 0 {
		return ""
	}
	return TakeLastTokens(strings.Join(accepted, " "), tok, windowTokens)
}

// GlobalAnchor returns the first anchorTokens tokens of the source when mode is head.
func GlobalAnchor(source string, tok Tokenizer, mode AnchorMode, anchorTokens int) string {
	if mode != AnchorHead {
		return ""
	}
	return TakeFirstTokens(source, tok, anchorTokens)
}
