package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// LocalSource is the local inbox and outbox.
type LocalSource interface {
	// Scan returns the files currently in the inbox, oldest first.
	Scan(ctx context.Context) ([]string, error)

	// Watch streams settled inbox and outbox changes until ctx is done.
	Watch(ctx context.Context) (<-chan domain.LocalEvent, error)

	// Read returns a file's content.
	Read(ctx context.Context, path string) ([]byte, error)
}
