// Package similarity stores successfully processed documents as embedded
// examples and retrieves the nearest ones to enrich prompts. The store is an
// optional collaborator: a pipeline without one simply never builds adaptive
// prompts.
package similarity

import (
	"context"

	"github.com/google/uuid"

	"github.com/mvbarbosa/docetl/constants"
)

// Example is one stored processed document.
type Example struct {
	JobID      uuid.UUID
	Type       constants.DocType
	Text       string
	Extraction []byte // raw extraction JSON, empty for classification-only examples
	Confidence float32
	// Distance is set on retrieval: smaller is closer.
	Distance float64
}

// Store persists embedded examples and answers nearest-neighbour queries.
type Store interface {
	// Add stores one example with its embedding. Called after a job
	// completes; failures must not fail the job.
	Add(ctx context.Context, ex Example, embedding []float32) error
	// Similar returns up to limit examples of the given type closest to the
	// embedding, nearest first. A zero docType searches across all types.
	Similar(ctx context.Context, embedding []float32, docType constants.DocType, limit int) ([]Example, error)
	Close()
}

// Noop is the store used when similarity is disabled.
type Noop struct{}

func (Noop) Add(context.Context, Example, []float32) error { return nil }
func (Noop) Similar(context.Context, []float32, constants.DocType, int) ([]Example, error) {
	return nil, nil
}
func (Noop) Close() {}
