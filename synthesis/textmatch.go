package synthesis

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}_-]*`)

// wordList returns lowercased words in order.
func wordList(text string) []string {
	words := wordPattern.FindAllString(text, -1)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

// wordSet returns the distinct lowercased words of text.
func wordSet(text string) map[string]struct{} {
	words := wordPattern.FindAllString(text, -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// tokenJaccard is the word-set Jaccard similarity of two texts.
func tokenJaccard(left, right string) float64 {
	return jaccard(wordSet(left), wordSet(right))
}

func overlapCount(a, b map[string]struct{}) int {
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// wordsInOrder reports whether words appear in text in order, ignoring edge punctuation.
func wordsInOrder(words []string, text string) bool {
	if len(words) == 0 {
		return true
	}
	i := 0
	for _, w := range strings.Fields(text) {
		if strings.Trim(w, `.,;:!?()[]{}"'`) == words[i] {
			i++
			if i == len(words) {
				return true
			}
		}
	}
	return false
}

// foldText case-folds and NFKC-normalizes text for comparisons that should ignore width and case.
func foldText(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// containsFolded is a case-insensitive substring match that also treats full-width and
// compatibility forms as equal.
func containsFolded(text, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(needle)) {
		return true
	}
	return strings.Contains(foldText(text), foldText(needle))
}

// ngrams returns the set of n-word shingles of text.
func ngrams(text string, n int) map[string]struct{} {
	words := wordList(text)
	set := make(map[string]struct{})
	if n <= 0 || len(words) < n {
		return set
	}
	for i := 0; i+n <= len(words); i++ {
		set[strings.Join(words[i:i+n], " ")] = struct{}{}
	}
	return set
}

// ngramOverlap is the share of candidate's n-grams already present in prior.
func ngramOverlap(candidate, prior string, n int) float64 {
	c := ngrams(candidate, n)
	if len(c) == 0 {
		return 0
	}
	p := ngrams(prior, n)
	return float64(overlapCount(c, p)) / float64(len(c))
}

func mergeUnique(existing []string, items ...string) []string {
	seen := make(map[string]struct{}, len(existing)+len(items))
	out := make([]string, 0, len(existing)+len(items))
	for _, v := range append(append([]string(nil), existing...), items...) {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
