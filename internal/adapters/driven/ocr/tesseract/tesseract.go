//go:build tesseract

package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor runs OCR locally.
type Extractor struct {
	clientFactory func() *gosseract.Client
	languages     []string
}

// New creates a Tesseract extractor for languages (default "eng").
func New(languages ...string) (*Extractor, error) {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Extractor{clientFactory: gosseract.NewClient, languages: languages}, nil
}

// Name identifies the extractor.
func (e *Extractor) Name() string { return "tesseract" }

// Extract transcribes the image.
func (e *Extractor) Extract(ctx context.Context, req driven.ExtractionRequest) (*domain.Extraction, error) {
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("%w: set languages: %w", domain.ErrValidation, err)
	}
	if err := c.SetImageFromBytes(req.Content); err != nil {
		return nil, fmt.Errorf("%w: set image: %w", domain.ErrValidation, err)
	}
	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("%w: recognize text: %w", domain.ErrValidation, err)
	}

	text = strings.TrimSpace(text)
	return &domain.Extraction{
		Text:      text,
		Title:     titleFrom(text),
		Proposals: proposeTags(text, req.Vocabulary),
		Raw:       text,
		Model:     "tesseract/" + strings.Join(e.languages, "+"),
	}, nil
}
