package indexing

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// DefaultMaxChunkTokens and DefaultOverlapTokens fix §4.4 step 5's
// "target size ≈ 500 tokens per chunk... overlapping by up to 100
// tokens".
const (
	DefaultMaxChunkTokens = 500
	DefaultOverlapTokens  = 100
	// tokensPerChar approximates English/code token density; the spec
	// leaves the estimator's exact formula to the implementation.
	tokensPerChar = 4
)

// ChunkSpec is one slice of a file's content produced by Chunker.Chunk.
type ChunkSpec struct {
	Index       int
	StartLine   int
	EndLine     int
	Content     string
	TokenCount  int
	ContentHash string
}

// Chunker splits file content into overlapping, line-aligned chunks.
type Chunker struct {
	maxTokens int
	overlap   int
}

// NewChunker builds a Chunker; zero values fall back to the spec
// defaults.
func NewChunker(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	if overlapTokens <= 0 {
		overlapTokens = DefaultOverlapTokens
	}
	return &Chunker{maxTokens: maxTokens, overlap: overlapTokens}
}

// Chunk splits content into ChunkSpecs with per-chunk content hashes,
// recording start/end line per §4.4 step 5.
func (c *Chunker) Chunk(content string) []ChunkSpec {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	linesPerChunk := (c.maxTokens * tokensPerChar) / 80
	if linesPerChunk < 5 {
		linesPerChunk = 5
	}
	overlapLines := (c.overlap * tokensPerChar) / 80
	if overlapLines < 0 {
		overlapLines = 0
	}
	if overlapLines >= linesPerChunk {
		overlapLines = linesPerChunk - 1
	}

	var chunks []ChunkSpec
	for i := 0; i < len(lines); {
		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}

		body := strings.Join(lines[i:end], "\n")
		chunks = append(chunks, ChunkSpec{
			Index:       len(chunks),
			StartLine:   i + 1,
			EndLine:     end,
			Content:     body,
			TokenCount:  estimateTokens(body),
			ContentHash: ContentHash([]byte(body)),
		})

		if end >= len(lines) {
			break
		}
		i = end - overlapLines
		if i < 0 {
			i = end
		}
	}
	return chunks
}

func estimateTokens(s string) int {
	n := len(s) / tokensPerChar
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

// ContentHash computes the stable per-file/per-chunk content hash
// required by §4.4 step 2 and invariant 3.4.8. blake2b is used in
// preference to a cryptographic hash the module otherwise has no use
// for, matching the crypto dependency already wired for this purpose.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
