package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvbarbosa/docetl/internal/async"
)

type captureQueue struct {
	jobs []async.Job
}

func (q *captureQueue) Enqueue(_ context.Context, job async.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestScanOnceEnqueuesSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cnh.pdf", "%PDF fake")
	writeFile(t, dir, "foto.png", "png bytes")
	writeFile(t, dir, "notas.xlsx", "not supported")
	writeFile(t, dir, ".escondido.pdf", "hidden")

	q := &captureQueue{}
	s := NewScanner(dir, q, nil)

	stats, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if stats.Enqueued != 2 {
		t.Fatalf("enqueued %d, want 2", stats.Enqueued)
	}
	if len(q.jobs) != 2 {
		t.Fatalf("queue got %d jobs, want 2", len(q.jobs))
	}
	for _, job := range q.jobs {
		if len(job.Document.Bytes) == 0 || job.Document.SourcePath == "" {
			t.Fatalf("incomplete job document: %+v", job.Document)
		}
	}
}

func TestRescanDeduplicatesByContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.pdf", "same content")

	q := &captureQueue{}
	s := NewScanner(dir, q, nil)

	if _, err := s.ScanOnce(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	// same content under a new name is still a duplicate
	writeFile(t, dir, "doc-copy.pdf", "same content")
	stats, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if stats.Enqueued != 0 {
		t.Fatalf("enqueued %d on rescan, want 0", stats.Enqueued)
	}
	if stats.Deduplicated != 2 {
		t.Fatalf("deduplicated %d, want 2", stats.Deduplicated)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("queue got %d jobs, want 1", len(q.jobs))
	}
}
