// Package convert turns raw document bytes into normalized text through a
// prioritized chain of heterogeneous providers.
package convert

import (
	"context"
	"time"

	"github.com/mvbarbosa/docetl/internal/entity"
)

// Output is the raw result of one provider attempt, before quality scoring.
type Output struct {
	Text  string
	Pages int
	// NativeConfidence is the provider's own confidence signal;
	// quality.NoNative when the provider does not report one.
	NativeConfidence float32
	Warnings         []string
	Duration         time.Duration
}

// Provider converts a document into text.
//
// Convert fails with common.ErrUnsupportedFormat for MIME types the provider
// cannot handle, common.ErrProviderUnavailable on transient failures (the
// caller may fall back), and common.ErrProviderRejected when the document
// itself is malformed (the provider will never succeed on it).
type Provider interface {
	Name() string
	Supports(format string) bool
	Convert(ctx context.Context, doc entity.Document) (Output, error)
}
