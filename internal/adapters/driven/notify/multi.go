package notify

import (
	"context"
	"errors"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Ensure Multi and Noop implement the interface.
var (
	_ driven.Notifier = (Multi)(nil)
	_ driven.Notifier = Noop{}
)

// Multi delivers to every sink and joins their errors.
type Multi []driven.Notifier

// Notify sends e to all sinks. One failing sink does not stop the others.
func (m Multi) Notify(ctx context.Context, e domain.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards events.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, domain.Event) error { return nil }

// Combine returns Noop for no sinks, the sink itself for one, or a Multi.
func Combine(sinks ...driven.Notifier) driven.Notifier {
	switch len(sinks) {
	case 0:
		return Noop{}
	case 1:
		return sinks[0]
	default:
		return Multi(sinks)
	}
}
