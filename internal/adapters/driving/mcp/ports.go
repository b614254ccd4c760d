package mcp

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/classification"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
)

// LedgerReader is the read side of the processing ledger.
type LedgerReader interface {
	Stats(ctx context.Context) ([]domain.LedgerStats, error)
	Recent(ctx context.Context, accountID string, limit int) ([]domain.ProcessedFile, error)
}

// VocabularyRegistry opens per-account vocabularies.
type VocabularyRegistry interface {
	Scope(ctx context.Context, scope string, extra classification.SeedFunc) (*classification.Vocabulary, error)
}

// Ports aggregates what the MCP server needs.
type Ports struct {
	Ledger     LedgerReader
	Vocabulary VocabularyRegistry

	// Local enables the process_file tool. Optional.
	Local driving.LocalIngester

	// Sync enables the poll_account tool. Optional.
	Sync driving.Synchronizer
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Ledger == nil {
		return ErrMissingLedger
	}
	if p.Vocabulary == nil {
		return ErrMissingVocabulary
	}
	return nil
}
