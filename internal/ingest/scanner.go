// Package ingest feeds documents from a watched directory into the
// processing queue.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/async"
	"github.com/mvbarbosa/docetl/internal/entity"
)

// Enqueuer is the queue surface the scanner needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

// Stats aggregates one directory pass.
type Stats struct {
	Scanned      uint32
	Matched      uint32
	Enqueued     uint32
	Deduplicated uint32
	Failed       uint32
}

// Scanner walks a directory and enqueues every new supported document.
// Content hashes already seen are skipped, so re-scanning the same directory
// is idempotent.
type Scanner struct {
	dir    string
	queue  Enqueuer
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{} // content sha256
}

func NewScanner(dir string, queue Enqueuer, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		dir:    dir,
		queue:  queue,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// ScanOnce walks the directory once. Unreadable files are counted and
// skipped, never fatal.
func (s *Scanner) ScanOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.Scanned++
		if walkErr != nil {
			stats.Failed++
			s.logger.Warn("scan error", "path", path, "error", walkErr)
			return nil
		}
		if d.IsDir() {
			if isHidden(d.Name()) && path != s.dir {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(d.Name()) {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			return nil
		}
		stats.Matched++

		data, err := os.ReadFile(path)
		if err != nil {
			stats.Failed++
			s.logger.Warn("unreadable file", "path", path, "error", err)
			return nil
		}
		sum := sha256.Sum256(data)
		key := hex.EncodeToString(sum[:])
		s.mu.Lock()
		_, dup := s.seen[key]
		if !dup {
			s.seen[key] = struct{}{}
		}
		s.mu.Unlock()
		if dup {
			stats.Deduplicated++
			return nil
		}

		job := async.Job{
			Document: entity.Document{
				Name:       d.Name(),
				Bytes:      data,
				MIMEType:   constants.MIMEForExt(ext),
				SourcePath: path,
			},
			SubmittedAt: time.Now().UTC(),
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			stats.Failed++
			s.logger.Warn("enqueue failed", "path", path, "error", err)
			return nil
		}
		stats.Enqueued++
		return nil
	})
	return stats, err
}

// Watch rescans the directory on the given interval until ctx is cancelled.
func (s *Scanner) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := s.ScanOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("directory scan failed", "dir", s.dir, "error", err)
		} else if stats.Enqueued > 0 {
			s.logger.Info("directory scanned",
				"dir", s.dir, "matched", stats.Matched,
				"enqueued", stats.Enqueued, "deduplicated", stats.Deduplicated)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
