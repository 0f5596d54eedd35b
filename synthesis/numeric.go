package synthesis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// FactType classifies a numeric fact.
type FactType string

const (
	FactYear       FactType = "year"
	FactPercentage FactType = "percentage"
	FactQuantity   FactType = "quantity"
	FactVersion    FactType = "version"
)

// NumericFact is a number found in text with a short window of surrounding context.
type NumericFact struct {
	Value   string
	Context string
	Type    FactType
}

var (
	yearPattern        = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	percentPattern     = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*%`)
	percentWordPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:percentage|percent|pct)\b`)
	quantityPattern    = regexp.MustCompile(`(?i)\b\d+(?:,\d{3})*(?:\.\d+)?\s*(?:million|billion|trillion|thousand|M|B|T|K)\b`)
	versionPattern     = regexp.MustCompile(`\bv\d+(?:\.\d+){1,2}\b|\b\d+\.\d+\.\d+\b`)
)

var quantityMultipliers = []struct {
	suffix string
	mult   float64
}{
	{"trillion", 1e12}, {"billion", 1e9}, {"million", 1e6}, {"thousand", 1e3},
	{"t", 1e12}, {"b", 1e9}, {"m", 1e6}, {"k", 1e3},
}

// NumericFactChecker finds years, percentages, quantities and versions from a source that are
// absent from a target. Quantities match within 5%; the rest must match after normalization.
type NumericFactChecker struct {
	// ContextWindow is the number of bytes of context kept on each side of a fact.
	ContextWindow int
	// Penalty is subtracted from the score per missing fact. Zero disables scoring.
	Penalty float64
}

func NewNumericFactChecker(penalty float64) NumericFactChecker {
	return NumericFactChecker{ContextWindow: 30, Penalty: penalty}
}

// FindMissing returns source facts without a match in target, ordered by type then value.
func (c NumericFactChecker) FindMissing(source, target string) []NumericFact {
	src := c.extract(source)
	tgt := c.extract(target)

	var missing []NumericFact
	for _, fact := range src {
		exact := fact.Type != FactQuantity
		found := false
		for _, cand := range tgt {
			if cand.Type != fact.Type {
				continue
			}
			if exact && normalizeFactValue(fact.Value) == normalizeFactValue(cand.Value) {
				found = true
				break
			}
			if !exact && quantitiesSimilar(fact.Value, cand.Value) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, fact)
		}
	}
	sort.SliceStable(missing, func(i, j int) bool {
		if missing[i].Type != missing[j].Type {
			return missing[i].Type < missing[j].Type
		}
		return missing[i].Value < missing[j].Value
	})
	return missing
}

func (c NumericFactChecker) Score(source, rewritten string) FidelityScore {
	missing := c.FindMissing(source, rewritten)
	issues := make([]string, 0, len(missing))
	for _, f := range missing {
		issues = append(issues, fmt.Sprintf("%s %s missing", capitalize(string(f.Type)), f.Value))
	}
	value := 1.0
	if c.Penalty > 0 && len(missing) > 0 {
		value = math.Max(0, 1-float64(len(missing))*c.Penalty)
	}
	return FidelityScore{Value: value, Issues: issues}
}

// extract returns distinct facts keyed by type and value.
func (c NumericFactChecker) extract(text string) []NumericFact {
	seen := make(map[string]struct{})
	var facts []NumericFact
	add := func(t FactType, value string, loc []int) {
		key := string(t) + "|" + value
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		facts = append(facts, NumericFact{Value: value, Type: t, Context: c.context(text, loc[0], loc[1])})
	}

	for _, loc := range yearPattern.FindAllStringIndex(text, -1) {
		add(FactYear, text[loc[0]:loc[1]], loc)
	}
	for _, loc := range percentPattern.FindAllStringIndex(text, -1) {
		add(FactPercentage, strings.ReplaceAll(strings.ToLower(text[loc[0]:loc[1]]), " ", ""), loc)
	}
	for _, loc := range percentWordPattern.FindAllStringIndex(text, -1) {
		v := strings.ToLower(text[loc[0]:loc[1]])
		for _, w := range []string{"percentage", "percent", "pct"} {
			v = strings.ReplaceAll(v, w, "%")
		}
		add(FactPercentage, strings.ReplaceAll(v, " ", ""), loc)
	}
	for _, loc := range quantityPattern.FindAllStringIndex(text, -1) {
		add(FactQuantity, strings.ToLower(text[loc[0]:loc[1]]), loc)
	}
	for _, loc := range versionPattern.FindAllStringIndex(text, -1) {
		add(FactVersion, text[loc[0]:loc[1]], loc)
	}
	return facts
}

func (c NumericFactChecker) context(text string, start, end int) string {
	w := c.ContextWindow
	if w <= 0 {
		w = 30
	}
	lo := max(0, start-w)
	hi := min(len(text), end+w)
	return strings.ToValidUTF8(strings.TrimSpace(text[lo:hi]), "")
}

func normalizeFactValue(v string) string {
	v = strings.ToLower(v)
	v = strings.ReplaceAll(v, ",", "")
	v = strings.ReplaceAll(v, " ", "")
	if strings.HasPrefix(v, "v") && isDigitsAndDots(v[1:]) {
		v = v[1:]
	}
	return v
}

func isDigitsAndDots(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func quantitiesSimilar(left, right string) bool {
	l, lok := parseQuantity(left)
	r, rok := parseQuantity(right)
	if lok && rok {
		if r > 0 {
			return math.Abs(l-r)/r < 0.05
		}
		return l == r
	}
	return normalizeFactValue(left) == normalizeFactValue(right)
}

func parseQuantity(v string) (float64, bool) {
	v = strings.ToLower(v)
	for _, sym := range []string{",", "$", "€", "£", "¥"} {
		v = strings.ReplaceAll(v, sym, "")
	}
	v = strings.TrimSpace(v)
	for _, m := range quantityMultipliers {
		if strings.HasSuffix(v, m.suffix) {
			n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(v, m.suffix)), 64)
			if err != nil {
				return 0, false
			}
			return n * m.mult, true
		}
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
