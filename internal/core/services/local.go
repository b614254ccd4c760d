package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/ocrbox/internal/classification"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// Ensure LocalIngest implements the interface.
var _ driving.LocalIngester = (*LocalIngest)(nil)

// LocalIngest feeds the local inbox to the pipeline and learns tags from
// renamed outbox files. Items are processed one at a time.
type LocalIngest struct {
	source    driven.LocalSource
	processor driving.Processor
	dest      driven.Destination
	ledger    driven.Ledger
	vocab     *classification.Registry
	accept    func(name string) bool
	onFatal   func(error)
}

// NewLocalIngest creates a local ingester. accept filters file names and
// may be nil.
func NewLocalIngest(
	source driven.LocalSource,
	processor driving.Processor,
	dest driven.Destination,
	ledger driven.Ledger,
	vocab *classification.Registry,
	accept func(name string) bool,
) *LocalIngest {
	return &LocalIngest{
		source:    source,
		processor: processor,
		dest:      dest,
		ledger:    ledger,
		vocab:     vocab,
		accept:    accept,
	}
}

// SetFatalHandler sets the callback for storage failures.
func (l *LocalIngest) SetFatalHandler(fn func(error)) {
	l.onFatal = fn
}

// ProcessFile reads path and runs it through the pipeline.
func (l *LocalIngest) ProcessFile(ctx context.Context, path string) (*domain.ProcessOutcome, error) {
	content, err := l.source.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return l.processor.Process(ctx, driving.ProcessRequest{
		Content:     content,
		Source:      domain.SourceRef{ID: abs, Path: abs, Name: filepath.Base(abs)},
		AccountID:   domain.LocalAccount,
		Destination: l.dest,
	})
}

// Run processes the existing inbox, then handles watch events until ctx
// is done. It returns nil on cancellation and an error only when durable
// storage failed.
func (l *LocalIngest) Run(ctx context.Context) error {
	existing, err := l.source.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scanning inbox: %w", err)
	}
	for _, path := range existing {
		if ctx.Err() != nil {
			return nil
		}
		if err := l.handle(ctx, domain.LocalEvent{Kind: domain.LocalInbox, Path: path}); err != nil {
			return err
		}
	}

	events, err := l.source.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watching inbox: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := l.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// handle dispatches one event. Item failures are logged; storage failures
// are returned.
func (l *LocalIngest) handle(ctx context.Context, ev domain.LocalEvent) error {
	name := filepath.Base(ev.Path)
	if l.accept != nil && ev.Kind == domain.LocalInbox && !l.accept(name) {
		return nil
	}

	var err error
	switch ev.Kind {
	case domain.LocalInbox:
		err = l.process(ctx, ev.Path)
	case domain.LocalOutbox:
		err = l.learn(ctx, ev.Path)
	}
	if errors.Is(err, domain.ErrStorageUnavailable) {
		if l.onFatal != nil {
			l.onFatal(err)
		}
		return err
	}
	return nil
}

func (l *LocalIngest) process(ctx context.Context, path string) error {
	outcome, err := l.ProcessFile(ctx, path)
	switch {
	case errors.Is(err, domain.ErrStorageUnavailable):
		return err
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("%s vanished before processing", path)
	case err != nil:
		logger.Warn("processing %s: %v", path, err)
	case outcome.AlreadyProcessed:
		logger.Info("%s already processed as %s", filepath.Base(path), outcome.Record.OutputPath)
	}
	return nil
}

func (l *LocalIngest) learn(ctx context.Context, path string) error {
	vocab, err := l.vocab.Scope(ctx, domain.LocalAccount, nil)
	if err != nil {
		return fmt.Errorf("%w: opening vocabulary: %w", domain.ErrStorageUnavailable, err)
	}
	name := filepath.Base(path)
	if vocab.Produced(name) {
		return nil
	}
	ours, err := l.ledger.HasOutput(ctx, domain.LocalAccount, path)
	if err != nil {
		return fmt.Errorf("%w: checking output: %w", domain.ErrStorageUnavailable, err)
	}
	if ours {
		return nil
	}
	learned, err := vocab.Learn(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	if len(learned) > 0 {
		logger.Info("learned tags %s from %s", strings.Join(learned, ","), name)
	}
	return nil
}
