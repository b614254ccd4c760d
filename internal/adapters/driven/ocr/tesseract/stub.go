//go:build !tesseract

package tesseract

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Extractor is unavailable in this build.
type Extractor struct{}

// New reports that Tesseract support is not compiled in.
func New(...string) (*Extractor, error) {
	return nil, ErrUnsupported
}

// Name identifies the extractor.
func (e *Extractor) Name() string { return "tesseract" }

// Extract always fails.
func (e *Extractor) Extract(context.Context, driven.ExtractionRequest) (*domain.Extraction, error) {
	return nil, ErrUnsupported
}
