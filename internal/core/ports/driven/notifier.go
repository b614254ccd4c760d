package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// Notifier delivers an event to a sink. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// AuditLog appends structured records.
type AuditLog interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}
