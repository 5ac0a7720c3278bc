// Package store persists job snapshots and usage records. The pipeline treats
// the store as a collaborator, not a gate: persistence failures are logged and
// swallowed so document processing never stalls on the database.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mvbarbosa/docetl/internal/entity"
)

// Store is the persistence surface the pipeline and exporter depend on.
type Store interface {
	// SaveJob upserts the job snapshot. Called at every state transition.
	SaveJob(ctx context.Context, job *entity.DocumentJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*entity.DocumentJob, error)
	// ListCompleted returns jobs that reached COMPLETED since the given time.
	ListCompleted(ctx context.Context, since time.Time) ([]entity.DocumentJob, error)
	// AppendUsageRecord satisfies cost.Sink.
	AppendUsageRecord(ctx context.Context, rec entity.UsageRecord) error
	Close()
}

// Noop discards everything. Used when persistence is not configured, and in
// tests.
type Noop struct{}

func (Noop) SaveJob(context.Context, *entity.DocumentJob) error { return nil }
func (Noop) GetJob(context.Context, uuid.UUID) (*entity.DocumentJob, error) {
	return nil, nil
}
func (Noop) ListCompleted(context.Context, time.Time) ([]entity.DocumentJob, error) {
	return nil, nil
}
func (Noop) AppendUsageRecord(context.Context, entity.UsageRecord) error { return nil }
func (Noop) Close()                                                      {}
