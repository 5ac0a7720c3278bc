package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/mvbarbosa/docetl/constants"
)

// Document is the raw input handed to conversion providers.
type Document struct {
	Name     string
	Bytes    []byte
	MIMEType string
	// SourcePath is set when the bytes live on disk; the local converter
	// drives external binaries against it instead of re-writing a temp file.
	SourcePath string
}

// Ext returns the normalized extension derived from the document name.
func (d Document) Ext() string {
	for i := len(d.Name) - 1; i >= 0; i-- {
		if d.Name[i] == '.' {
			return constants.NormalizeExt(d.Name[i:])
		}
	}
	return ""
}

// DocumentJob tracks one document through the pipeline. It is mutated only by
// the orchestrator; everything else sees snapshots.
type DocumentJob struct {
	ID        uuid.UUID          `json:"id"`
	CallerID  string             `json:"caller_id"`
	Document  Document           `json:"-"`
	State     constants.JobState `json:"state"`
	Flags     []string           `json:"flags,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`

	// FailureReason is set on the terminal failure branches.
	FailureReason string `json:"failure_reason,omitempty"`

	Conversions []ConversionResult `json:"conversions,omitempty"`
	// Winner names the conversion attempt the pipeline settled on.
	Winner         string                `json:"winner,omitempty"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	Extraction     *ExtractionRecord     `json:"extraction,omitempty"`
}

// HasFlag reports whether a warning flag is set on the job.
func (j *DocumentJob) HasFlag(flag string) bool {
	for _, f := range j.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag sets a warning flag once.
func (j *DocumentJob) AddFlag(flag string) {
	if !j.HasFlag(flag) {
		j.Flags = append(j.Flags, flag)
	}
}

// BestConversion returns the highest-scored conversion obtained so far.
func (j *DocumentJob) BestConversion() *ConversionResult {
	var best *ConversionResult
	for i := range j.Conversions {
		if best == nil || j.Conversions[i].Quality > best.Quality {
			best = &j.Conversions[i]
		}
	}
	return best
}

// ConversionResult is the output of one provider attempt. Immutable once
// created; a job accumulates one per attempted provider.
type ConversionResult struct {
	Provider string        `json:"provider"`
	Text     string        `json:"text"`
	Quality  float32       `json:"quality"`
	Pages    int           `json:"pages,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// ClassificationResult is produced once per job.
type ClassificationResult struct {
	Type       constants.DocType `json:"type"`
	Confidence float32           `json:"confidence"`
	Model      string            `json:"model"`
	Adaptive   bool              `json:"adaptive,omitempty"`
}

// Unclassified reports whether classification fell through to the sentinel.
func (c ClassificationResult) Unclassified() bool {
	return c.Type == constants.Unclassified
}

// ExtractionRecord maps schema field names to extracted values. Keys are
// always a subset of the schema's declared fields; fields the model could not
// locate carry the not-found sentinel.
type ExtractionRecord struct {
	Type             constants.DocType `json:"type"`
	Fields           map[string]string `json:"fields"`
	MissingMandatory []string          `json:"missing_mandatory,omitempty"`
	Model            string            `json:"model"`
}

// FinalRecord is the caller-facing result of a job, successful or not.
type FinalRecord struct {
	JobID          uuid.UUID             `json:"job_id"`
	State          constants.JobState    `json:"state"`
	Flags          []string              `json:"flags,omitempty"`
	FailureReason  string                `json:"failure_reason,omitempty"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	Extraction     *ExtractionRecord     `json:"extraction,omitempty"`
	// Conversion is the attempt the pipeline settled on; Scores lists
	// every attempt in the order it was made.
	Conversion *ProviderScore  `json:"conversion,omitempty"`
	Scores     []ProviderScore `json:"scores,omitempty"`
}

// ProviderScore pairs a provider name with the quality it achieved.
type ProviderScore struct {
	Provider string  `json:"provider"`
	Quality  float32 `json:"quality"`
}

// UsageRecord is one append-only cost ledger entry.
type UsageRecord struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	JobID     uuid.UUID `json:"job_id"`
	Kind      string    `json:"kind"` // "llm" | "conversion" | "embedding"
	Provider  string    `json:"provider"`
	Model     string    `json:"model,omitempty"`
	TokensIn  int       `json:"tokens_in,omitempty"`
	TokensOut int       `json:"tokens_out,omitempty"`
	Pages     int       `json:"pages,omitempty"`
	CostUSD   float64   `json:"cost_usd"`
}
