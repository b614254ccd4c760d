package driving

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// LocalIngester processes the local inbox.
type LocalIngester interface {
	// ProcessFile runs one local file through the pipeline.
	ProcessFile(ctx context.Context, path string) (*domain.ProcessOutcome, error)

	// Run processes the files already in the inbox, then watches for new
	// ones until ctx is done.
	Run(ctx context.Context) error
}
