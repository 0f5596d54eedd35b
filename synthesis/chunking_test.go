package synthesis

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitTexts(t *testing.T, text string, opts SplitOptions) []string {
	t.Helper()
	chunks, err := Split(text, WhitespaceTokenizer{}, opts)
	require.NoError(t, err)
	return ChunkTexts(chunks)
}

func TestSplit_ThreeParagraphsBecomeThreeChunks(t *testing.T) {
	t.Parallel()

	text := "First paragraph has five words.\n\nSecond paragraph is here too.\n\nThird one closes the text."
	opts := DefaultSplitOptions()
	opts.ChunkSize = 100

	chunks, err := Split(text, WhitespaceTokenizer{}, opts)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	want := []string{
		"First paragraph has five words.",
		"Second paragraph is here too.",
		"Third one closes the text.",
	}
	if diff := cmp.Diff(want, ChunkTexts(chunks)); diff != "" {
		t.Fatalf("chunk texts mismatch (-want +got):\n%s", diff)
	}
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, c.Text, text[c.Start:c.End])
	}
	assert.Equal(t, "\n\n", chunks[0].Separator)
	assert.Empty(t, chunks[2].Separator)
}

func TestSplit_IsDeterministic(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("one two three four five six. seven eight nine ten!\n", 20)
	opts := DefaultSplitOptions()
	opts.ChunkSize = 7

	a, err := Split(text, WhitespaceTokenizer{}, opts)
	require.NoError(t, err)
	b, err := Split(text, WhitespaceTokenizer{}, opts)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("split not deterministic (-a +b):\n%s", diff)
	}
}

func TestSplit_ChunksNeverOverlapAndStayInOrder(t *testing.T) {
	t.Parallel()

	text := "Alpha beta gamma delta. Epsilon zeta eta theta.\nIota kappa lambda mu nu xi omicron pi rho sigma tau upsilon.\n\nPhi chi psi omega."
	opts := DefaultSplitOptions()
	opts.ChunkSize = 4

	chunks, err := Split(text, WhitespaceTokenizer{}, opts)
	require.NoError(t, err)
	prevEnd := 0
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.Start, prevEnd)
		assert.LessOrEqual(t, WhitespaceTokenizer{}.Count(c.Text), 4, "chunk %q", c.Text)
		prevEnd = c.End
	}
}

func TestSplit_FallsBackToLinesThenSentences(t *testing.T) {
	t.Parallel()

	text := "a b c\nd e f. g h i. j k l"
	opts := DefaultSplitOptions()
	opts.ChunkSize = 3

	got := splitTexts(t, text, opts)
	want := []string{"a b c", "d e f.", "g h i.", "j k l"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestSplit_OversizedUnitWithoutCharFallbackIsKeptWhole(t *testing.T) {
	t.Parallel()

	text := "one two three four five six seven"
	opts := DefaultSplitOptions()
	opts.ChunkSize = 3
	opts.EnableCharFallback = false

	got := splitTexts(t, text, opts)
	assert.Equal(t, []string{text}, got)
}

func TestSplit_HardCutByTokens(t *testing.T) {
	t.Parallel()

	text := "one two three four five six seven"
	opts := DefaultSplitOptions()
	opts.ChunkSize = 3
	opts.LengthMode = LengthToken

	got := splitTexts(t, text, opts)
	assert.Equal(t, []string{"one two three", "four five six", "seven"}, got)
}

func TestSplit_HardCutKeepsWholeTokens(t *testing.T) {
	t.Parallel()

	word := strings.Repeat("x", 40)
	opts := DefaultSplitOptions()
	opts.ChunkSize = 2
	opts.LengthMode = LengthToken

	got := splitTexts(t, "a "+word+" b", opts)
	assert.Equal(t, []string{"a " + word, "b"}, got)
}

func TestSplit_CharModeCutsOnWhitespace(t *testing.T) {
	t.Parallel()

	text := "abcd efgh ijkl"
	opts := DefaultSplitOptions()
	opts.ChunkSize = 6
	opts.LengthMode = LengthChar
	opts.EnableSentenceFallback = false

	got := splitTexts(t, text, opts)
	assert.Equal(t, []string{"abcd", "efgh", "ijkl"}, got)
}

func TestSplit_AutoModeCountsCodePointsForCJK(t *testing.T) {
	t.Parallel()

	text := "这是第一句话。这是第二句话。"
	opts := DefaultSplitOptions()
	opts.ChunkSize = 7

	got := splitTexts(t, text, opts)
	assert.Equal(t, []string{"这是第一句话。", "这是第二句话。"}, got)
}

func TestSplit_MergeSmallUnitsKeepsSourceSpan(t *testing.T) {
	t.Parallel()

	text := "a b\n\nc d\n\ne f g h"
	opts := DefaultSplitOptions()
	opts.ChunkSize = 4
	opts.MergeSmallUnits = true

	got := splitTexts(t, text, opts)
	assert.Equal(t, []string{"a b\n\nc d", "e f g h"}, got)
}

func TestSplit_EmptyAndInvalid(t *testing.T) {
	t.Parallel()

	chunks, err := Split("   \n\n  ", WhitespaceTokenizer{}, DefaultSplitOptions())
	require.NoError(t, err)
	assert.Empty(t, chunks)

	opts := DefaultSplitOptions()
	opts.ChunkSize = 0
	_, err = Split("text", WhitespaceTokenizer{}, opts)
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "chunk_size", ce.Field)
}

func TestDetectDominantScript(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ScriptLatin, DetectDominantScript("Hello world 2024"))
	assert.Equal(t, ScriptCJK, DetectDominantScript("你好，世界"))
	assert.Equal(t, ScriptMixed, DetectDominantScript("hi 你好"))
	assert.Equal(t, ScriptMixed, DetectDominantScript("123 !!!"))
}
