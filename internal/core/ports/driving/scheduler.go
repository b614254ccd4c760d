package driving

import "context"

// Scheduler runs the periodic poll and retention tasks.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop prevents new task runs and waits for in-flight ones.
	Stop() error
}
