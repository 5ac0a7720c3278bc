package similarity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/mvbarbosa/docetl/constants"
)

// PgVector is the pgvector-backed store.
type PgVector struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgVector connects to the similarity database and registers the vector
// type on every connection.
func NewPgVector(ctx context.Context, dsn string, logger *slog.Logger) (*PgVector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse similarity dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect similarity store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping similarity store: %w", err)
	}
	return &PgVector{pool: pool, logger: logger}, nil
}

func (s *PgVector) Add(ctx context.Context, ex Example, embedding []float32) error {
	const q = `
		INSERT INTO adaptive_examples (job_id, doc_type, text, extraction, confidence, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO NOTHING`
	_, err := s.pool.Exec(ctx, q,
		ex.JobID, string(ex.Type), ex.Text, ex.Extraction, ex.Confidence,
		pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("store example: %w", err)
	}
	return nil
}

func (s *PgVector) Similar(ctx context.Context, embedding []float32, docType constants.DocType, limit int) ([]Example, error) {
	vec := pgvector.NewVector(embedding)

	var rows pgx.Rows
	var err error
	if docType == "" {
		const q = `
			SELECT job_id, doc_type, text, extraction, confidence, embedding <=> $1 AS distance
			FROM adaptive_examples
			ORDER BY embedding <=> $1
			LIMIT $2`
		rows, err = s.pool.Query(ctx, q, vec, limit)
	} else {
		const q = `
			SELECT job_id, doc_type, text, extraction, confidence, embedding <=> $1 AS distance
			FROM adaptive_examples
			WHERE doc_type = $2
			ORDER BY embedding <=> $1
			LIMIT $3`
		rows, err = s.pool.Query(ctx, q, vec, string(docType), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query similar: %w", err)
	}
	defer rows.Close()

	var out []Example
	for rows.Next() {
		var ex Example
		var dt string
		if err := rows.Scan(&ex.JobID, &dt, &ex.Text, &ex.Extraction, &ex.Confidence, &ex.Distance); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		ex.Type = constants.DocType(dt)
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (s *PgVector) Close() { s.pool.Close() }
