package synthesis

import "unicode"

// Script is the dominant writing system of a text.
type Script string

const (
	ScriptLatin Script = "latin"
	ScriptCJK   Script = "cjk"
	ScriptMixed Script = "mixed"
)

const dominantScriptShare = 0.6

// DetectDominantScript classifies text by the share of CJK and Latin letters among all letters.
// Digits, punctuation and spaces are ignored; text without letters is mixed.
func DetectDominantScript(text string) Script {
	var cjk, latin, letters int
	for _, r := range text {
		switch {
		case isCJK(r):
			cjk++
			letters++
		case unicode.Is(unicode.Latin, r):
			latin++
			letters++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if letters == 0 {
		return ScriptMixed
	}
	if float64(cjk)/float64(letters) > dominantScriptShare {
		return ScriptCJK
	}
	if float64(latin)/float64(letters) > dominantScriptShare {
		return ScriptLatin
	}
	return ScriptMixed
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// AdaptiveLength measures text in the unit selected by mode.
// Auto counts code points for CJK-dominant text and tokens otherwise.
func AdaptiveLength(text string, tok Tokenizer, mode LengthMode) int {
	switch mode {
	case LengthChar:
		return runeCount(text)
	case LengthToken:
		if tok == nil {
			return runeCount(text)
		}
		return tok.Count(text)
	default:
		if tok == nil || DetectDominantScript(text) == ScriptCJK {
			return runeCount(text)
		}
		return tok.Count(text)
	}
}
