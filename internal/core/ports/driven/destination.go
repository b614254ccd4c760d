package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// Destination is where the pipeline writes outputs and archives originals.
type Destination interface {
	// OutputExists reports whether an output with this name exists.
	OutputExists(ctx context.Context, name string) (bool, error)

	// WriteOutput stores content under name and returns its location.
	WriteOutput(ctx context.Context, name string, content []byte) (string, error)

	// Archive moves the original for source into the archive area
	// and returns its new location.
	Archive(ctx context.Context, source domain.SourceRef, content []byte) (string, error)
}

// LogPublisher is implemented by destinations that mirror audit entries.
type LogPublisher interface {
	PublishLog(ctx context.Context, name string, content []byte) error
}
