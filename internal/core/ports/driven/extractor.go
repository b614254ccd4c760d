package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// ExtractionRequest is the input to an OCR call.
type ExtractionRequest struct {
	Content  []byte
	MIMEType string
	Name     string

	// Vocabulary lists the tag names the extractor may propose.
	Vocabulary []string
}

// Extractor submits an image and returns text, title and tag proposals.
// Retryable failures wrap domain.ErrTransient; everything else is permanent.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (*domain.Extraction, error)

	// Name identifies the extractor in logs and audit entries.
	Name() string
}
