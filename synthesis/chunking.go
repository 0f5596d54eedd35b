package synthesis

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LengthMode selects the unit chunk_size is measured in.
type LengthMode string

const (
	LengthAuto  LengthMode = "auto"
	LengthToken LengthMode = "token"
	LengthChar  LengthMode = "char"
)

// Chunk is an ordered, immutable slice of the source text.
// Start and End are byte offsets into the source; Separator is the source text between
// this chunk and the next one (empty for the last chunk).
type Chunk struct {
	Index     int    `json:"index"`
	Start     int    `json:"start_offset"`
	End       int    `json:"end_offset"`
	Text      string `json:"text"`
	Separator string `json:"separator,omitempty"`
}

// SplitOptions controls how a document is broken into leaf chunks.
type SplitOptions struct {
	// ChunkSize is the upper bound per chunk in the LengthMode unit.
	ChunkSize  int
	LengthMode LengthMode

	// EnableLineFallback splits an oversized paragraph on single newlines.
	EnableLineFallback bool

	// EnableSentenceFallback splits an oversized line on sentence terminators.
	EnableSentenceFallback bool

	// EnableCharFallback allows a hard cut at the size limit when nothing else fits.
	// Without it an oversized unit is emitted whole.
	EnableCharFallback bool

	// MergeSmallUnits packs adjacent leaves into one chunk while they fit.
	MergeSmallUnits bool

	// BoundarySearchWindow is how many code points a hard cut may move back to land on whitespace.
	BoundarySearchWindow int
}

// DefaultSplitOptions mirrors the rephrase defaults.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{
		ChunkSize:              1024,
		LengthMode:             LengthAuto,
		EnableLineFallback:     true,
		EnableSentenceFallback: true,
		EnableCharFallback:     true,
		BoundarySearchWindow:   32,
	}
}

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	lineBreak      = regexp.MustCompile(`\n`)
	sentenceEnd    = regexp.MustCompile(`[。！？；]+["'”’)\]]*\s*|[.!?;]+["'”’)\]]*\s+`)
)

type span struct {
	start, end int
}

// Split partitions text into non-overlapping chunks bounded by opts.ChunkSize.
// Paragraphs are tried first, then lines, sentences and finally a hard cut.
// Leading and trailing whitespace of the document is not part of any chunk.
func Split(text string, tok Tokenizer, opts SplitOptions) ([]Chunk, error) {
	if opts.ChunkSize <= 0 {
		return nil, &ConfigurationError{Field: "chunk_size", Reason: "must be > 0"}
	}
	if tok == nil {
		tok = WhitespaceTokenizer{}
	}
	if opts.LengthMode == "" {
		opts.LengthMode = LengthAuto
	}
	if opts.BoundarySearchWindow < 0 {
		opts.BoundarySearchWindow = 0
	}

	s := splitter{src: text, tok: tok, opts: opts}
	lo, hi := trimSpan(text, 0, len(text))
	if lo >= hi {
		return nil, nil
	}

	var leaves []span
	for _, p := range splitOn(text, lo, hi, paragraphBreak) {
		leaves = append(leaves, s.splitParagraph(p)...)
	}
	if opts.MergeSmallUnits {
		leaves = s.merge(leaves)
	}
	if len(leaves) == 0 {
		return nil, errors.New("Split: produced no chunks")
	}

	chunks := make([]Chunk, 0, len(leaves))
	for i, l := range leaves {
		c := Chunk{Index: i, Start: l.start, End: l.end, Text: text[l.start:l.end]}
		if i+1 < len(leaves) {
			c.Separator = text[l.end:leaves[i+1].start]
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// ChunkTexts returns the text of each chunk.
func ChunkTexts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

type splitter struct {
	src  string
	tok  Tokenizer
	opts SplitOptions
}

func (s splitter) fits(sp span) bool {
	return AdaptiveLength(s.src[sp.start:sp.end], s.tok, s.opts.LengthMode) <= s.opts.ChunkSize
}

func (s splitter) splitParagraph(p span) []span {
	if s.fits(p) {
		return []span{p}
	}
	if !s.opts.EnableLineFallback {
		return s.splitLine(p)
	}
	var out []span
	for _, line := range splitOn(s.src, p.start, p.end, lineBreak) {
		out = append(out, s.splitLine(line)...)
	}
	return out
}

func (s splitter) splitLine(l span) []span {
	if s.fits(l) {
		return []span{l}
	}
	if !s.opts.EnableSentenceFallback {
		return s.hardCut(l)
	}
	var out []span
	for _, sentence := range splitAfter(s.src, l.start, l.end, sentenceEnd) {
		if s.fits(sentence) {
			out = append(out, sentence)
			continue
		}
		out = append(out, s.hardCut(sentence)...)
	}
	return out
}

// hardCut is the last resort. It returns the span whole when char fallback is off.
func (s splitter) hardCut(sp span) []span {
	if !s.opts.EnableCharFallback {
		return []span{sp}
	}
	text := s.src[sp.start:sp.end]
	var breakpoints []int
	if st, ok := s.tok.(SpanTokenizer); ok && s.measuresTokens(text) {
		breakpoints = tokenBreakpoints(st.Spans(text), s.opts.ChunkSize)
	} else {
		breakpoints = charBreakpoints(text, s.opts.ChunkSize, s.opts.BoundarySearchWindow)
	}
	return applyBreakpoints(s.src, sp, breakpoints)
}

func (s splitter) measuresTokens(text string) bool {
	switch s.opts.LengthMode {
	case LengthToken:
		return true
	case LengthChar:
		return false
	default:
		return DetectDominantScript(text) != ScriptCJK
	}
}

// merge packs adjacent leaves into one span while the combined source slice still fits.
func (s splitter) merge(leaves []span) []span {
	if len(leaves) < 2 {
		return leaves
	}
	out := make([]span, 0, len(leaves))
	curr := leaves[0]
	for _, l := range leaves[1:] {
		candidate := span{start: curr.start, end: l.end}
		if s.fits(candidate) {
			curr = candidate
			continue
		}
		out = append(out, curr)
		curr = l
	}
	return append(out, curr)
}

// tokenBreakpoints returns byte offsets (relative to the span) where a new piece starts,
// one every size tokens.
func tokenBreakpoints(spans []Span, size int) []int {
	var bps []int
	for i := size; i < len(spans); i += size {
		bps = append(bps, spans[i].Start)
	}
	return bps
}

// charBreakpoints cuts every size code points, moving each cut back onto whitespace
// when one is found within window code points.
func charBreakpoints(text string, size, window int) []int {
	runeStarts := make([]int, 0, len(text))
	for i := range text {
		runeStarts = append(runeStarts, i)
	}
	if len(runeStarts) <= size {
		return nil
	}
	if window > size/2 {
		window = size / 2
	}

	var bps []int
	pos := 0
	for len(runeStarts)-pos > size {
		cut := pos + size
		for back := 0; back < window; back++ {
			i := cut - back
			if i <= pos+1 {
				break
			}
			r, _ := utf8.DecodeRuneInString(text[runeStarts[i]:])
			if unicode.IsSpace(r) {
				cut = i
				break
			}
		}
		bps = append(bps, runeStarts[cut])
		pos = cut
	}
	return bps
}

// applyBreakpoints converts relative breakpoints into trimmed, non-empty spans.
func applyBreakpoints(src string, sp span, breakpoints []int) []span {
	bps := normalizeBreakpoints(breakpoints, sp.end-sp.start)
	boundaries := make([]int, 0, len(bps)+2)
	boundaries = append(boundaries, 0)
	boundaries = append(boundaries, bps...)
	boundaries = append(boundaries, sp.end-sp.start)

	var out []span
	for i := 0; i+1 < len(boundaries); i++ {
		lo, hi := trimSpan(src, sp.start+boundaries[i], sp.start+boundaries[i+1])
		if lo < hi {
			out = append(out, span{start: lo, end: hi})
		}
	}
	if len(out) == 0 {
		return []span{sp}
	}
	return out
}

func normalizeBreakpoints(breakpoints []int, total int) []int {
	if total <= 1 || len(breakpoints) == 0 {
		return nil
	}
	bps := append([]int(nil), breakpoints...)
	sort.Ints(bps)

	out := bps[:0]
	prev := -1
	for _, b := range bps {
		if b <= 0 || b >= total || b == prev {
			continue
		}
		out = append(out, b)
		prev = b
	}
	return out
}

// splitOn returns the trimmed, non-empty pieces of src[lo:hi] between matches of re.
func splitOn(src string, lo, hi int, re *regexp.Regexp) []span {
	var out []span
	prev := lo
	for _, m := range re.FindAllStringIndex(src[lo:hi], -1) {
		if a, b := trimSpan(src, prev, lo+m[0]); a < b {
			out = append(out, span{start: a, end: b})
		}
		prev = lo + m[1]
	}
	if a, b := trimSpan(src, prev, hi); a < b {
		out = append(out, span{start: a, end: b})
	}
	return out
}

// splitAfter is splitOn but keeps the terminator with the preceding piece.
func splitAfter(src string, lo, hi int, re *regexp.Regexp) []span {
	var out []span
	prev := lo
	for _, m := range re.FindAllStringIndex(src[lo:hi], -1) {
		if a, b := trimSpan(src, prev, lo+m[1]); a < b {
			out = append(out, span{start: a, end: b})
		}
		prev = lo + m[1]
	}
	if a, b := trimSpan(src, prev, hi); a < b {
		out = append(out, span{start: a, end: b})
	}
	return out
}

func trimSpan(src string, lo, hi int) (int, int) {
	seg := src[lo:hi]
	trimmed := strings.TrimLeftFunc(seg, unicode.IsSpace)
	lo += len(seg) - len(trimmed)
	trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
	return lo, lo + len(trimmed)
}
