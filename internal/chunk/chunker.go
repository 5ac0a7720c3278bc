// Package chunk splits extensive document text into overlapping windows so
// each LLM call stays within a bounded prompt size.
package chunk

import (
	"strings"

	"github.com/mvbarbosa/docetl/internal/common"
)

// Chunker splits text deterministically. Zero-value is not usable; construct
// with New so the bounds are validated once.
type Chunker struct {
	extensiveThreshold int
	maxChunkSize       int
	overlap            int
}

func New(cfg common.ChunkingConfig) (*Chunker, error) {
	if cfg.MaxChunkSize <= 0 {
		return nil, common.NewAppError("CHUNK_CONFIG", "chunk size must be > 0", common.ErrInvalidInput)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxChunkSize {
		return nil, common.NewAppError("CHUNK_CONFIG", "overlap must be >= 0 and smaller than chunk size", common.ErrInvalidInput)
	}
	return &Chunker{
		extensiveThreshold: cfg.ExtensiveThreshold,
		maxChunkSize:       cfg.MaxChunkSize,
		overlap:            cfg.Overlap,
	}, nil
}

// Extensive reports whether the text is long enough to require chunking.
func (c *Chunker) Extensive(text string) bool {
	return len([]rune(text)) > c.extensiveThreshold
}

// Split cuts text into windows of at most maxChunkSize runes, each carrying
// overlap runes from the end of its predecessor. Cuts prefer the last line or
// word boundary inside the window so a field value is unlikely to straddle
// two chunks. Short text comes back as a single chunk unchanged.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.maxChunkSize {
		return []string{text}
	}

	var chunks []string
	step := c.maxChunkSize - c.overlap
	for start := 0; start < len(runes); {
		end := start + c.maxChunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		cut := boundaryBefore(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		next := cut - c.overlap
		if next <= start {
			next = start + step
		}
		start = next
	}
	return chunks
}

// boundaryBefore finds the best cut point at or before end, searching back at
// most a quarter of the window for a newline, then a space. Falls back to the
// hard limit.
func boundaryBefore(runes []rune, start, end int) int {
	floor := end - (end-start)/4
	for i := end - 1; i >= floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if runes[i] == ' ' || runes[i] == '\t' {
			return i + 1
		}
	}
	return end
}

// JoinPreview renders a short preview of the chunk layout for logs.
func JoinPreview(chunks []string) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strings.TrimSpace(firstLine(ch)))
	}
	if b.Len() > 120 {
		return b.String()[:120] + "…"
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
