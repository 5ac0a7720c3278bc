package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/entity"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSaveAndGetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	job := &entity.DocumentJob{
		ID:        uuid.New(),
		CallerID:  "cli",
		State:     constants.StateReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != job.ID || got.State != constants.StateReceived || got.CallerID != "cli" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestSaveJobUpsertsOnStateChange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &entity.DocumentJob{
		ID:        uuid.New(),
		State:     constants.StateReceived,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	job.State = constants.StateCompleted
	job.Classification = &entity.ClassificationResult{Type: constants.CNH, Confidence: 0.9}
	job.UpdatedAt = time.Now().UTC()
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob update: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != constants.StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", got.State)
	}
	if got.Classification == nil || got.Classification.Type != constants.CNH {
		t.Fatalf("classification lost on upsert: %+v", got.Classification)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetJob(context.Background(), uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListCompleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	states := []constants.JobState{constants.StateCompleted, constants.StateReceived, constants.StateCompleted}
	for i, st := range states {
		job := &entity.DocumentJob{
			ID:        uuid.New(),
			State:     st,
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	got, err := s.ListCompleted(ctx, base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListCompleted: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d completed jobs, want 2", len(got))
	}
}

func TestAppendUsageRecord(t *testing.T) {
	s := openTestStore(t)
	rec := entity.UsageRecord{
		Seq:       1,
		Timestamp: time.Now().UTC(),
		JobID:     uuid.New(),
		Kind:      "llm",
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		TokensIn:  120,
		TokensOut: 30,
		CostUSD:   0.0001,
	}
	if err := s.AppendUsageRecord(context.Background(), rec); err != nil {
		t.Fatalf("AppendUsageRecord: %v", err)
	}
}
