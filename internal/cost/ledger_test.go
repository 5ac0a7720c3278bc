package cost

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/mvbarbosa/docetl/internal/entity"
)

func testRates() RateTable {
	return RateTable{
		ModelRates: map[string][2]float64{
			"gpt-4o-mini":            {0.00015, 0.0006},
			"text-embedding-3-small": {0.00002, 0},
		},
		PageRate: 0.0015,
	}
}

func TestLLMCost(t *testing.T) {
	rates := testRates()
	got := rates.LLMCost("gpt-4o-mini", 1000, 500)
	want := 0.00015 + 0.0006*0.5
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("LLMCost = %v, want %v", got, want)
	}
	if rates.LLMCost("unknown-model", 1000, 1000) != 0 {
		t.Fatal("unknown model should cost zero")
	}
}

func TestConversionCost(t *testing.T) {
	rates := testRates()
	if got := rates.ConversionCost(4); math.Abs(got-0.006) > 1e-12 {
		t.Fatalf("ConversionCost = %v, want 0.006", got)
	}
	if rates.ConversionCost(0) != 0 {
		t.Fatal("zero pages should cost zero")
	}
}

func TestAppendAssignsMonotonicSeq(t *testing.T) {
	l := NewLedger(testRates(), nil, nil)
	ctx := context.Background()
	jobID := uuid.New()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.AppendLLM(ctx, jobID, "openai", "gpt-4o-mini", 100, 50)
		}()
	}
	wg.Wait()

	entries := l.Snapshot()
	if len(entries) != n {
		t.Fatalf("got %d entries, want %d", len(entries), n)
	}
	seen := make(map[uint64]bool, n)
	for _, e := range entries {
		if e.Seq == 0 || seen[e.Seq] {
			t.Fatalf("duplicate or zero seq %d", e.Seq)
		}
		seen[e.Seq] = true
		if e.Timestamp.IsZero() {
			t.Fatal("timestamp not assigned")
		}
	}
}

func TestAppendEmbeddingComputesCost(t *testing.T) {
	l := NewLedger(testRates(), nil, nil)
	rec := l.AppendEmbedding(context.Background(), uuid.New(), "openai", "text-embedding-3-small", 2000)
	if rec.Kind != "embedding" || rec.Model != "text-embedding-3-small" {
		t.Fatalf("record = %+v", rec)
	}
	if math.Abs(rec.CostUSD-0.00004) > 1e-12 {
		t.Fatalf("CostUSD = %v, want 0.00004", rec.CostUSD)
	}
}

type failingSink struct{ calls int }

func (s *failingSink) AppendUsageRecord(ctx context.Context, rec entity.UsageRecord) error {
	s.calls++
	return context.DeadlineExceeded
}

func TestSinkFailureDoesNotBlockLedger(t *testing.T) {
	sink := &failingSink{}
	l := NewLedger(testRates(), sink, nil)
	rec := l.AppendConversion(context.Background(), uuid.New(), "remote", 3)
	if rec.Seq != 1 {
		t.Fatalf("seq = %d, want 1", rec.Seq)
	}
	if sink.calls != 1 {
		t.Fatalf("sink called %d times, want 1", sink.calls)
	}
	if len(l.Snapshot()) != 1 {
		t.Fatal("entry missing from ledger after sink failure")
	}
}

func TestTotalCost(t *testing.T) {
	l := NewLedger(testRates(), nil, nil)
	ctx := context.Background()
	jobID := uuid.New()
	l.AppendLLM(ctx, jobID, "openai", "gpt-4o-mini", 1000, 1000)
	l.AppendConversion(ctx, jobID, "remote", 2)
	want := (0.00015 + 0.0006) + 0.003
	if got := l.TotalCost(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("TotalCost = %v, want %v", got, want)
	}
}
