package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/entity"
)

// SQLite is the embedded single-file store, the default for local runs.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database file and runs migrations.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	logger.Info("opening database", "type", "sqlite", "path", path)

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is in-process; a single writer connection avoids
	// SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := Migrate(ctx, db, "sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) SaveJob(ctx context.Context, job *entity.DocumentJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	const q = `
		INSERT INTO document_jobs (id, caller_id, state, failure_reason, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			failure_reason = excluded.failure_reason,
			payload = excluded.payload,
			updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, q,
		job.ID.String(), job.CallerID, string(job.State), job.FailureReason,
		string(payload), job.CreatedAt.UTC().Format(time.RFC3339Nano),
		job.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *SQLite) GetJob(ctx context.Context, id uuid.UUID) (*entity.DocumentJob, error) {
	const q = `SELECT payload FROM document_jobs WHERE id = ?`
	var payload string
	if err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.NewAppError("JOB_NOT_FOUND", fmt.Sprintf("job %s", id), common.ErrNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return decodeJob([]byte(payload))
}

func (s *SQLite) ListCompleted(ctx context.Context, since time.Time) ([]entity.DocumentJob, error) {
	const q = `
		SELECT payload FROM document_jobs
		WHERE state = 'COMPLETED' AND updated_at >= ?
		ORDER BY updated_at`
	rows, err := s.db.QueryContext(ctx, q, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var out []entity.DocumentJob
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job, err := decodeJob([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendUsageRecord(ctx context.Context, rec entity.UsageRecord) error {
	const q = `
		INSERT INTO usage_records (seq, recorded_at, job_id, kind, provider, model, tokens_in, tokens_out, pages, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		rec.Seq, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.JobID.String(),
		rec.Kind, rec.Provider, rec.Model, rec.TokensIn, rec.TokensOut, rec.Pages, rec.CostUSD)
	if err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

func (s *SQLite) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing sqlite", "error", err)
	}
}
