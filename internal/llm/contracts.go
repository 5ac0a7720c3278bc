// Package llm defines the gateway the pipeline uses to talk to language
// models, plus the schema building, validation and sanitization shared by
// every backend.
package llm

import "context"

// Usage is the token accounting one model call reports.
type Usage struct {
	TokensIn  int
	TokensOut int
}

// TextResult is the answer of a free-text completion call.
type TextResult struct {
	Answer string
	Model  string
	Usage  Usage
}

// ExtractResult is the outcome of a schema-constrained extraction call. Fields
// holds the validated field values; Raw is the model output after
// sanitization, kept for storage and adaptive examples.
type ExtractResult struct {
	Fields    map[string]string
	Raw       []byte
	Model     string
	Usage     Usage
	Sanitized []string // sanitization actions applied, empty when output was clean
}

// EmbedResult is one embedding call's output. Model is reported so usage
// accounting can price the call.
type EmbedResult struct {
	Vector []float32
	Model  string
	Usage  Usage
}

// Gateway is the backend-neutral surface the pipeline depends on. A Classify
// call returns the model's raw answer; mapping it onto the catalog is the
// caller's concern. An Extract call returns only output that validates against
// the supplied JSON schema; anything the backend cannot repair comes back as
// ErrExtractionMalformed.
type Gateway interface {
	Name() string
	Classify(ctx context.Context, prompt string) (TextResult, error)
	Extract(ctx context.Context, prompt string, schema map[string]any) (ExtractResult, error)
	Embed(ctx context.Context, text string) (EmbedResult, error)
}
