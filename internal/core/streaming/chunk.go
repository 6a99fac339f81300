package streaming

import (
	"fmt"
	"math"
	"unicode"
)

// StreamChunk is an ephemeral slice of a text payload, produced on demand
// to animate content at a controlled pace. Never persisted or buffered.
type StreamChunk struct {
	Content    string `json:"content"`
	Offset     int    `json:"offset"` // absolute position in the source text
	Length     int    `json:"length"`
	IsBoundary bool   `json:"is_boundary"` // cut fell on a word boundary
}

// ChunkOptions controls text chunking behavior.
type ChunkOptions struct {
	RespectWordBoundaries bool
}

// ChunkText splits text into chunks of at most maxSize characters using a
// greedy left-to-right scan. With RespectWordBoundaries set, a cut that
// would fall mid-text backs up to the nearest whitespace inside the
// window; a single token longer than maxSize is still split mid-token.
// Whitespace consumed between chunks is skipped but counted toward the
// next chunk's offset.
func ChunkText(text string, maxSize int, opts ChunkOptions) ([]StreamChunk, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", maxSize)
	}

	runes := []rune(text)
	n := len(runes)
	var chunks []StreamChunk

	pos := skipWhitespace(runes, 0)
	for pos < n {
		end := pos + maxSize
		if end > n {
			end = n
		}

		isBoundary := false
		if opts.RespectWordBoundaries && end < n {
			if cut := lastWhitespaceBefore(runes, pos, end); cut > pos {
				end = cut
				isBoundary = true
			}
		}

		content := string(runes[pos:end])
		chunks = append(chunks, StreamChunk{
			Content:    content,
			Offset:     pos,
			Length:     len([]rune(content)),
			IsBoundary: isBoundary,
		})

		pos = skipWhitespace(runes, end)
	}

	return chunks, nil
}

// lastWhitespaceBefore returns the index of the rune following the last
// whitespace in (start, end], or start when the window holds none.
func lastWhitespaceBefore(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i - 1
		}
	}
	return start
}

// skipWhitespace advances past whitespace runes starting at pos
func skipWhitespace(runes []rune, pos int) int {
	for pos < len(runes) && unicode.IsSpace(runes[pos]) {
		pos++
	}
	return pos
}

// CalculateChunkTiming returns per-chunk delivery offsets in milliseconds.
// The first chunk is delivered at 0 and the rest at uniform intervals of
// totalDuration/(n-1) regardless of chunk length, simulating a constant
// typing cadence.
func CalculateChunkTiming(chunks []StreamChunk, totalDurationMs int) []int {
	n := len(chunks)
	if n == 0 {
		return []int{}
	}
	offsets := make([]int, n)
	if n == 1 || totalDurationMs <= 0 {
		return offsets
	}

	interval := float64(totalDurationMs) / float64(n-1)
	for i := 1; i < n; i++ {
		offsets[i] = int(math.Round(interval * float64(i)))
	}
	return offsets
}
