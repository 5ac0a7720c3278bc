package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/entity"
)

// Postgres is the pgx-backed store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a pgx pool, runs migrations, and returns the store.
func OpenPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "type", "postgres")

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "docetl"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := Migrate(ctx, db, "postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := db.Close(); err != nil {
		logger.Warn("closing migration handle", "error", err)
	}

	logger.Info("successfully connected to database")
	return &Postgres{pool: pool, logger: logger}, nil
}

func (s *Postgres) SaveJob(ctx context.Context, job *entity.DocumentJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	const q = `
		INSERT INTO document_jobs (id, caller_id, state, failure_reason, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			failure_reason = EXCLUDED.failure_reason,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, q,
		job.ID, job.CallerID, string(job.State), job.FailureReason,
		payload, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *Postgres) GetJob(ctx context.Context, id uuid.UUID) (*entity.DocumentJob, error) {
	const q = `SELECT payload FROM document_jobs WHERE id = $1`
	var payload []byte
	if err := s.pool.QueryRow(ctx, q, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewAppError("JOB_NOT_FOUND", fmt.Sprintf("job %s", id), common.ErrNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return decodeJob(payload)
}

func (s *Postgres) ListCompleted(ctx context.Context, since time.Time) ([]entity.DocumentJob, error) {
	const q = `
		SELECT payload FROM document_jobs
		WHERE state = 'COMPLETED' AND updated_at >= $1
		ORDER BY updated_at`
	rows, err := s.pool.Query(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var out []entity.DocumentJob
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job, err := decodeJob(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendUsageRecord(ctx context.Context, rec entity.UsageRecord) error {
	const q = `
		INSERT INTO usage_records (seq, recorded_at, job_id, kind, provider, model, tokens_in, tokens_out, pages, cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, q,
		rec.Seq, rec.Timestamp, rec.JobID, rec.Kind, rec.Provider, rec.Model,
		rec.TokensIn, rec.TokensOut, rec.Pages, rec.CostUSD)
	if err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

func (s *Postgres) Close() { s.pool.Close() }

func decodeJob(payload []byte) (*entity.DocumentJob, error) {
	var job entity.DocumentJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
