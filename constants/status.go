package constants

// JobState is the canonical lifecycle state for a document job.
type JobState string

// Stable values (store these exact strings in DB).
const (
	StateReceived    JobState = "RECEIVED"
	StateConverting  JobState = "CONVERTING"
	StateConverted   JobState = "CONVERTED"
	StateClassifying JobState = "CLASSIFYING"
	StateClassified  JobState = "CLASSIFIED"
	StateExtracting  JobState = "EXTRACTING"
	StateExtracted   JobState = "EXTRACTED"
	StateCompleted   JobState = "COMPLETED"

	// terminal-but-reviewable failure branches
	StateConversionFailed     JobState = "CONVERSION_FAILED"
	StateClassificationFailed JobState = "CLASSIFICATION_FAILED"
	StateExtractionFailed     JobState = "EXTRACTION_FAILED"

	StateCancelled JobState = "CANCELLED"
)

// Terminal reports whether a job in this state will not transition again.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateConversionFailed, StateClassificationFailed,
		StateExtractionFailed, StateCancelled:
		return true
	}
	return false
}

// Job warning flags. These annotate a job without changing its state.
const (
	FlagLowConfidenceConversion = "low-confidence-conversion"
	FlagPartialExtraction       = "partial-extraction"
	FlagManualReview            = "manual-review"
)
