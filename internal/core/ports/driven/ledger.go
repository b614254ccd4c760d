package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// Ledger is the durable record of every processing attempt.
// (Fingerprint, AccountID) is unique; LocalAccount scopes local files.
type Ledger interface {
	// Get returns the record for a fingerprint in an account scope.
	// Returns domain.ErrNotFound if none exists.
	Get(ctx context.Context, fingerprint, accountID string) (*domain.ProcessedFile, error)

	// Reserve stores rec as pending. An existing non-success record for the
	// same key is reset to pending and its attempt count incremented.
	// rec is updated with the stored ID, attempts and timestamps. A key
	// whose record already succeeded returns domain.ErrAlreadyProcessed.
	Reserve(ctx context.Context, rec *domain.ProcessedFile) error

	// Complete persists the final status, output, tags and duration of rec.
	Complete(ctx context.Context, rec *domain.ProcessedFile) error

	// HasOutput reports whether any record, success or failed, names
	// outputPath as its output.
	HasOutput(ctx context.Context, accountID, outputPath string) (bool, error)

	// Stats returns record counts grouped by account.
	Stats(ctx context.Context) ([]domain.LedgerStats, error)

	// Recent returns the newest records for an account scope.
	Recent(ctx context.Context, accountID string, limit int) ([]domain.ProcessedFile, error)
}
