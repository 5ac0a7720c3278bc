package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/catalog"
	"github.com/mvbarbosa/docetl/internal/entity"
)

type fixedStore struct {
	jobs []entity.DocumentJob
}

func (s fixedStore) SaveJob(context.Context, *entity.DocumentJob) error { return nil }
func (s fixedStore) GetJob(context.Context, uuid.UUID) (*entity.DocumentJob, error) {
	return nil, nil
}
func (s fixedStore) ListCompleted(context.Context, time.Time) ([]entity.DocumentJob, error) {
	return s.jobs, nil
}
func (s fixedStore) AppendUsageRecord(context.Context, entity.UsageRecord) error { return nil }
func (s fixedStore) Close()                                                      {}

func completedJob(dt constants.DocType, fields map[string]string) entity.DocumentJob {
	now := time.Now().UTC()
	return entity.DocumentJob{
		ID:         uuid.New(),
		State:      constants.StateCompleted,
		CreatedAt:  now,
		UpdatedAt:  now,
		Extraction: &entity.ExtractionRecord{Type: dt, Fields: fields},
	}
}

func TestExportGroupsByType(t *testing.T) {
	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	st := fixedStore{jobs: []entity.DocumentJob{
		completedJob(constants.CNH, map[string]string{"nome": "João", "cpf": "123", "numero_cnh": "456"}),
		completedJob(constants.ComprovanteBancario, map[string]string{"razao_social": "ACME", "valor": "100"}),
		completedJob(constants.CNH, map[string]string{"nome": "Maria"}),
	}}
	svc := NewService(st, cat, nil)

	data, err := svc.ExportCompletedXLSX(context.Background(), nil)
	if err != nil {
		t.Fatalf("ExportCompletedXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 {
		t.Fatalf("got sheets %v, want one per type with data", sheets)
	}

	rows, err := f.GetRows("cnh")
	if err != nil {
		t.Fatalf("read cnh sheet: %v", err)
	}
	// header + two jobs
	if len(rows) != 3 {
		t.Fatalf("cnh sheet has %d rows, want 3", len(rows))
	}
	if rows[0][3] != "Nome completo do condutor" {
		t.Fatalf("header = %q, want schema label", rows[0][3])
	}
}

func TestExportEmptyStoreStillOpens(t *testing.T) {
	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	svc := NewService(fixedStore{}, cat, nil)

	data, err := svc.ExportCompletedXLSX(context.Background(), nil)
	if err != nil {
		t.Fatalf("ExportCompletedXLSX: %v", err)
	}
	if _, err := excelize.OpenReader(bytes.NewReader(data)); err != nil {
		t.Fatalf("empty workbook does not open: %v", err)
	}
}
