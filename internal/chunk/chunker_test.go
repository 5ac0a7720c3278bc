package chunk

import (
	"strings"
	"testing"

	"github.com/mvbarbosa/docetl/internal/common"
)

func newChunker(t *testing.T, threshold, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(common.ChunkingConfig{
		Enabled:            true,
		ExtensiveThreshold: threshold,
		MaxChunkSize:       size,
		Overlap:            overlap,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsBadBounds(t *testing.T) {
	if _, err := New(common.ChunkingConfig{MaxChunkSize: 0}); err == nil {
		t.Fatal("expected error for zero chunk size")
	}
	if _, err := New(common.ChunkingConfig{MaxChunkSize: 100, Overlap: 100}); err == nil {
		t.Fatal("expected error for overlap >= chunk size")
	}
}

func TestShortTextIsSingleChunk(t *testing.T) {
	c := newChunker(t, 10000, 3000, 200)
	text := "um comprovante curto"
	chunks := c.Split(text)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("short text should pass through unchanged, got %d chunks", len(chunks))
	}
	if c.Extensive(text) {
		t.Fatal("short text flagged extensive")
	}
}

func TestChunksRespectSizeAndOverlap(t *testing.T) {
	c := newChunker(t, 100, 500, 50)
	text := strings.Repeat("palavra chave do documento ", 200)
	if !c.Extensive(text) {
		t.Fatal("long text not flagged extensive")
	}
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if n := len([]rune(ch)); n > 500 {
			t.Fatalf("chunk %d has %d runes, limit 500", i, n)
		}
	}
	// consecutive chunks share text
	for i := 1; i < len(chunks); i++ {
		head := chunks[i][:40]
		if !strings.Contains(chunks[i-1], head) {
			t.Fatalf("chunk %d does not overlap its predecessor", i)
		}
	}
}

func TestSplitCoversWholeText(t *testing.T) {
	c := newChunker(t, 100, 300, 30)
	text := strings.Repeat("linha de texto com conteúdo\n", 100)
	chunks := c.Split(text)
	// every position of the original text must appear in some chunk
	joined := strings.Join(chunks, "")
	for _, marker := range []string{"linha de texto"} {
		if !strings.Contains(joined, marker) {
			t.Fatalf("marker %q lost in chunking", marker)
		}
	}
	if !strings.HasSuffix(chunks[len(chunks)-1], text[len(text)-20:]) {
		t.Fatal("tail of text missing from final chunk")
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	c := newChunker(t, 100, 400, 40)
	text := strings.Repeat("nota fiscal de serviços eletrônica número 42 ", 80)
	a := c.Split(text)
	b := c.Split(text)
	if len(a) != len(b) {
		t.Fatalf("nondeterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitPrefersLineBoundaries(t *testing.T) {
	c := newChunker(t, 10, 120, 10)
	text := strings.Repeat("uma linha razoavelmente comprida de documento\n", 10)
	chunks := c.Split(text)
	for i, ch := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(ch, "\n") {
			t.Fatalf("chunk %d does not end at a line boundary: %q", i, ch[len(ch)-10:])
		}
	}
}
