package driving

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// ProcessRequest is one item handed to the pipeline.
type ProcessRequest struct {
	Content []byte
	Source  domain.SourceRef

	// AccountID is domain.LocalAccount for local files.
	AccountID string

	// MIMEType is a hint; the extractor sniffs content when empty.
	MIMEType string

	// Destination receives the output and the archived original.
	Destination driven.Destination
}

// Processor is the idempotent processing pipeline.
type Processor interface {
	// Process runs one item through extraction, classification, output,
	// archival and ledger completion. A previously successful fingerprint
	// returns its prior record with AlreadyProcessed set and no error.
	// Failures return a *domain.ProcessingError after the ledger records them.
	Process(ctx context.Context, req ProcessRequest) (*domain.ProcessOutcome, error)
}
