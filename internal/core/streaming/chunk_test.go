package streaming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestChunkText_WordBoundaries tests the documented example split
func TestChunkText_WordBoundaries(t *testing.T) {
	chunks, err := ChunkText("Hello world test", 8, ChunkOptions{RespectWordBoundaries: true})
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "Hello", chunks[0].Content)
	assert.Equal(t, "world", chunks[1].Content)
	assert.Equal(t, "test", chunks[2].Content)

	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, 6, chunks[1].Offset, "Offset counts skipped whitespace")
	assert.Equal(t, 12, chunks[2].Offset)

	assert.True(t, chunks[0].IsBoundary)
	assert.True(t, chunks[1].IsBoundary)
	assert.False(t, chunks[2].IsBoundary, "The final chunk ends at end of text, not a backed-up cut")
}

// TestChunkText_HardCutWithoutBoundaries tests fixed-width splitting
func TestChunkText_HardCutWithoutBoundaries(t *testing.T) {
	chunks, err := ChunkText("abcdefghij", 4, ChunkOptions{})
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "abcd", chunks[0].Content)
	assert.Equal(t, "efgh", chunks[1].Content)
	assert.Equal(t, "ij", chunks[2].Content)
}

// TestChunkText_LongTokenSplitsMidToken tests that a single token longer
// than maxSize is still cut
func TestChunkText_LongTokenSplitsMidToken(t *testing.T) {
	chunks, err := ChunkText("supercalifragilistic", 6, ChunkOptions{RespectWordBoundaries: true})
	require.NoError(t, err)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "superc", chunks[0].Content)
	assert.False(t, chunks[0].IsBoundary)
}

// TestChunkText_EmptyAndWhitespaceOnly tests degenerate inputs
func TestChunkText_EmptyAndWhitespaceOnly(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		chunks, err := ChunkText(text, 8, ChunkOptions{RespectWordBoundaries: true})
		require.NoError(t, err)
		assert.Empty(t, chunks, "Input %q should produce no chunks", text)
	}
}

// TestChunkText_RejectsNonPositiveSize tests size validation
func TestChunkText_RejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := ChunkText("hello", size, ChunkOptions{})
		assert.Error(t, err, "Size %d should be rejected", size)
	}
}

// TestChunkText_UnicodeCountsRunes tests that sizes are measured in runes
func TestChunkText_UnicodeCountsRunes(t *testing.T) {
	chunks, err := ChunkText("日本語のテキスト", 4, ChunkOptions{})
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "日本語の", chunks[0].Content)
	assert.Equal(t, "テキスト", chunks[1].Content)
}

// TestChunkText_ReconstructionProperty tests that chunk contents cover the
// text exactly, modulo inter-chunk whitespace
func TestChunkText_ReconstructionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z0-9 ]{0,120}`).Draw(t, "text")
		maxSize := rapid.IntRange(1, 20).Draw(t, "maxSize")
		respect := rapid.Bool().Draw(t, "respect")

		chunks, err := ChunkText(text, maxSize, ChunkOptions{RespectWordBoundaries: respect})
		require.NoError(t, err)

		runes := []rune(text)
		var joined strings.Builder
		prevEnd := -1
		for i, chunk := range chunks {
			assert.NotEmpty(t, chunk.Content, "Chunks are never empty")
			assert.LessOrEqual(t, chunk.Length, maxSize, "Chunk %d exceeds maxSize", i)
			assert.Equal(t, len([]rune(chunk.Content)), chunk.Length)

			require.LessOrEqual(t, chunk.Offset+chunk.Length, len(runes))
			assert.Equal(t, string(runes[chunk.Offset:chunk.Offset+chunk.Length]), chunk.Content,
				"Chunk %d content must match the source at its offset", i)
			assert.Greater(t, chunk.Offset, prevEnd, "Offsets must advance")
			prevEnd = chunk.Offset + chunk.Length - 1

			joined.WriteString(chunk.Content)
		}

		stripped := strings.Join(strings.Fields(text), "")
		joinedStripped := strings.Join(strings.Fields(joined.String()), "")
		assert.Equal(t, stripped, joinedStripped, "Chunks must cover all non-whitespace text in order")
	})
}

// TestCalculateChunkTiming_UniformIntervals tests uniform pacing
func TestCalculateChunkTiming_UniformIntervals(t *testing.T) {
	chunks := make([]StreamChunk, 4)

	offsets := CalculateChunkTiming(chunks, 300)

	assert.Equal(t, []int{0, 100, 200, 300}, offsets)
}

// TestCalculateChunkTiming_EdgeCases tests degenerate inputs
func TestCalculateChunkTiming_EdgeCases(t *testing.T) {
	assert.Empty(t, CalculateChunkTiming(nil, 1000))
	assert.Equal(t, []int{0}, CalculateChunkTiming(make([]StreamChunk, 1), 1000))
	assert.Equal(t, []int{0, 0, 0}, CalculateChunkTiming(make([]StreamChunk, 3), 0))
}

// TestCalculateChunkTiming_Properties tests pacing invariants
func TestCalculateChunkTiming_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 50).Draw(t, "n")
		total := rapid.IntRange(1, 60000).Draw(t, "total")

		offsets := CalculateChunkTiming(make([]StreamChunk, n), total)

		require.Len(t, offsets, n)
		assert.Equal(t, 0, offsets[0], "The first chunk is delivered immediately")
		assert.Equal(t, total, offsets[n-1], "The last chunk lands at the total duration")
		for i := 1; i < n; i++ {
			assert.GreaterOrEqual(t, offsets[i], offsets[i-1], "Offsets must be non-decreasing")
		}
	})
}
