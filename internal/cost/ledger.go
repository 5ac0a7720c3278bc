// Package cost tracks per-call usage and monetary cost. Cost accounting is a
// first-class system output: every gateway and remote-provider call must land
// one ledger entry.
package cost

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvbarbosa/docetl/internal/entity"
)

// RateTable holds the configured per-model token rates (USD per 1k tokens)
// and the per-page rate for remote conversion.
type RateTable struct {
	ModelRates map[string][2]float64 // model -> [input, output]
	PageRate   float64               // USD per converted page
}

// LLMCost computes the cost of one model call.
func (t RateTable) LLMCost(model string, tokensIn, tokensOut int) float64 {
	r, ok := t.ModelRates[model]
	if !ok {
		return 0
	}
	return r[0]*float64(tokensIn)/1000 + r[1]*float64(tokensOut)/1000
}

// ConversionCost computes the cost of a paged remote conversion.
func (t RateTable) ConversionCost(pages int) float64 {
	if pages <= 0 {
		return 0
	}
	return t.PageRate * float64(pages)
}

// Sink receives ledger entries for durable storage. Failures are logged, not
// propagated: the ledger itself stays authoritative for the process lifetime.
type Sink interface {
	AppendUsageRecord(ctx context.Context, rec entity.UsageRecord) error
}

// Ledger is the append-only in-process usage ledger. Safe for concurrent
// writers; sequence numbers are monotonic.
type Ledger struct {
	rates  RateTable
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	seq     uint64
	entries []entity.UsageRecord
}

func NewLedger(rates RateTable, sink Sink, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{rates: rates, sink: sink, logger: logger}
}

// Rates exposes the configured table.
func (l *Ledger) Rates() RateTable { return l.rates }

// Append assigns a sequence number and timestamp, stores the entry, and
// forwards it to the sink best-effort.
func (l *Ledger) Append(ctx context.Context, rec entity.UsageRecord) entity.UsageRecord {
	l.mu.Lock()
	l.seq++
	rec.Seq = l.seq
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	l.entries = append(l.entries, rec)
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.AppendUsageRecord(ctx, rec); err != nil {
			l.logger.Warn("usage record persist failed",
				"seq", rec.Seq, "job_id", rec.JobID, "error", err)
		}
	}
	return rec
}

// AppendLLM records one gateway call, computing its cost from the rate table.
func (l *Ledger) AppendLLM(ctx context.Context, jobID uuid.UUID, provider, model string, tokensIn, tokensOut int) entity.UsageRecord {
	return l.Append(ctx, entity.UsageRecord{
		JobID:     jobID,
		Kind:      "llm",
		Provider:  provider,
		Model:     model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   l.rates.LLMCost(model, tokensIn, tokensOut),
	})
}

// AppendEmbedding records one embedding call. Embeddings only consume input
// tokens; the rate table prices them like any other model.
func (l *Ledger) AppendEmbedding(ctx context.Context, jobID uuid.UUID, provider, model string, tokensIn int) entity.UsageRecord {
	return l.Append(ctx, entity.UsageRecord{
		JobID:    jobID,
		Kind:     "embedding",
		Provider: provider,
		Model:    model,
		TokensIn: tokensIn,
		CostUSD:  l.rates.LLMCost(model, tokensIn, 0),
	})
}

// AppendConversion records one paged remote conversion.
func (l *Ledger) AppendConversion(ctx context.Context, jobID uuid.UUID, provider string, pages int) entity.UsageRecord {
	return l.Append(ctx, entity.UsageRecord{
		JobID:    jobID,
		Kind:     "conversion",
		Provider: provider,
		Pages:    pages,
		CostUSD:  l.rates.ConversionCost(pages),
	})
}

// Snapshot returns a copy of all entries appended so far.
func (l *Ledger) Snapshot() []entity.UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]entity.UsageRecord, len(l.entries))
	copy(out, l.entries)
	return out
}

// TotalCost sums the ledger.
func (l *Ledger) TotalCost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, e := range l.entries {
		total += e.CostUSD
	}
	return total
}
