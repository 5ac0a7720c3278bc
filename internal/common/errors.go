package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Pipeline error taxonomy. The orchestrator routes on these with errors.Is;
// everything else is treated as an internal error.
var (
	// ErrUnsupportedFormat: caller input defect, never retried.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrProviderUnavailable: transient, eligible for the fallback chain.
	// Per-call timeouts are mapped onto this.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderRejected: this provider considers the document malformed.
	// Fatal for the provider, the rest of the chain is still tried.
	ErrProviderRejected = errors.New("provider rejected document")
	// ErrMissingVariable: a template references a variable that was not
	// supplied. Surfaces at startup validation.
	ErrMissingVariable = errors.New("missing template variable")
	// ErrExtractionMalformed: the model response failed schema validation
	// twice (initial call + one strict retry).
	ErrExtractionMalformed = errors.New("extraction response malformed")

	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
