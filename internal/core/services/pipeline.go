package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/ocrbox/internal/classification"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.Processor = (*Pipeline)(nil)

// Output formats.
const (
	OutputText     = "text"
	OutputMarkdown = "markdown"
)

const defaultExcerptLength = 200

// PipelineConfig holds the pipeline's tunables.
type PipelineConfig struct {
	Retry          RetryPolicy
	Classification classification.Settings

	// OutputFormat is OutputText or OutputMarkdown.
	OutputFormat string

	// PublishLogs mirrors audit entries to destinations that support it.
	PublishLogs bool
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Retry:          DefaultRetryPolicy(),
		Classification: classification.DefaultSettings(),
		OutputFormat:   OutputText,
	}
}

// Pipeline processes one image at a time: fingerprint, reserve, extract,
// classify, write output, archive, complete.
type Pipeline struct {
	ledger    driven.Ledger
	extractor driven.Extractor
	vocab     *classification.Registry
	audit     driven.AuditLog
	notifier  driven.Notifier
	cfg       PipelineConfig
	namer     classification.Namer
	sleep     Sleeper
	sniff     Sniffer
	now       func() time.Time
}

// Sniffer validates content and returns its MIME type.
// Errors should wrap domain.ErrValidation.
type Sniffer func(content []byte) (string, error)

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithAuditLog sets the audit log collaborator.
func WithAuditLog(a driven.AuditLog) PipelineOption {
	return func(p *Pipeline) { p.audit = a }
}

// WithNotifier sets the notification sink.
func WithNotifier(n driven.Notifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

// WithSleeper overrides how retry delays are waited out.
func WithSleeper(s Sleeper) PipelineOption {
	return func(p *Pipeline) { p.sleep = s }
}

// WithSniffer validates content before extraction. Content it rejects
// fails at the extraction stage without calling the extractor.
func WithSniffer(s Sniffer) PipelineOption {
	return func(p *Pipeline) { p.sniff = s }
}

// WithPipelineClock overrides the clock, for tests.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a processing pipeline.
func NewPipeline(
	ledger driven.Ledger,
	extractor driven.Extractor,
	vocab *classification.Registry,
	cfg PipelineConfig,
	opts ...PipelineOption,
) *Pipeline {
	cfg.Classification = cfg.Classification.Normalize()
	ext := ".txt"
	if cfg.OutputFormat == OutputMarkdown {
		ext = ".md"
	}
	p := &Pipeline{
		ledger:    ledger,
		extractor: extractor,
		vocab:     vocab,
		cfg:       cfg,
		namer:     classification.NewNamer(cfg.Classification.MaxTitleLength, ext),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fingerprint returns the hex SHA-256 of content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Process runs one item through the pipeline. See driving.Processor.
func (p *Pipeline) Process(ctx context.Context, req driving.ProcessRequest) (*domain.ProcessOutcome, error) {
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content for %s", domain.ErrValidation, req.Source.Name)
	}
	if req.Destination == nil {
		return nil, fmt.Errorf("%w: no destination for %s", domain.ErrValidation, req.Source.Name)
	}

	start := p.now()
	fingerprint := Fingerprint(req.Content)
	log := logger.With("account", req.AccountID, "source", req.Source.Name)

	prior, err := p.ledger.Get(ctx, fingerprint, req.AccountID)
	switch {
	case err == nil && prior.Status == domain.StatusSuccess:
		log.Debug("already processed", "output", prior.OutputPath)
		return &domain.ProcessOutcome{Record: *prior, AlreadyProcessed: true}, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("%w: ledger lookup: %w", domain.ErrStorageUnavailable, err)
	}

	rec := &domain.ProcessedFile{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		AccountID:   req.AccountID,
		SourceID:    req.Source.ID,
		SourceName:  req.Source.Name,
		Status:      domain.StatusPending,
	}
	err = p.ledger.Reserve(ctx, rec)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		// Another writer finished the same content between Get and Reserve.
		done, getErr := p.ledger.Get(ctx, fingerprint, req.AccountID)
		if getErr != nil {
			return nil, fmt.Errorf("%w: ledger lookup: %w", domain.ErrStorageUnavailable, getErr)
		}
		log.Debug("already processed", "output", done.OutputPath)
		return &domain.ProcessOutcome{Record: *done, AlreadyProcessed: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: ledger reservation: %w", domain.ErrStorageUnavailable, err)
	}

	if p.sniff != nil {
		mime, err := p.sniff(req.Content)
		if err != nil {
			return nil, p.fail(context.WithoutCancel(ctx), req, rec, start, domain.StageExtraction, err)
		}
		if req.MIMEType == "" {
			req.MIMEType = mime
		}
	}

	vocab, err := p.vocab.Scope(ctx, req.AccountID, nil)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening vocabulary: %w", domain.ErrStorageUnavailable, err)
	}

	extraction, attempts, err := p.extract(ctx, req, vocab.Names())
	// Past this point the item runs to completion even if ctx is cancelled,
	// so output, archive and ledger are never left half-written.
	wctx := context.WithoutCancel(ctx)
	if err != nil {
		return nil, p.fail(wctx, req, rec, start, domain.StageExtraction, err)
	}
	log.Debug("extracted text", "attempts", attempts, "chars", len(extraction.Text))

	p.record(wctx, req, domain.AuditEntry{
		Kind: domain.AuditExtraction,
		Data: map[string]any{
			"model":     extraction.Model,
			"attempts":  attempts,
			"response":  extraction.Raw,
			"title":     extraction.Title,
			"proposals": extraction.Proposals,
		},
	})

	tags := classification.AcceptedTags(extraction.Proposals, vocab, p.cfg.Classification)
	title := titleCandidate(extraction)
	rec.Tags = tags
	rec.Title = classification.SanitizeTitle(title, p.cfg.Classification.MaxTitleLength)

	p.record(wctx, req, domain.AuditEntry{
		Kind: domain.AuditClassification,
		Data: map[string]any{
			"proposals":            extraction.Proposals,
			"accepted":             tags,
			"primary_threshold":    p.cfg.Classification.PrimaryThreshold,
			"additional_threshold": p.cfg.Classification.AdditionalThreshold,
			"title":                rec.Title,
		},
	})

	name, err := p.namer.Unique(wctx, rec.TagNames(), title, req.Destination.OutputExists)
	if err != nil {
		return nil, p.fail(wctx, req, rec, start, domain.StageOutput, err)
	}
	vocab.MarkProduced(name)

	outputPath, err := req.Destination.WriteOutput(wctx, name, p.render(extraction, rec, title, req.Source))
	if err != nil {
		return nil, p.fail(wctx, req, rec, start, domain.StageOutput, err)
	}
	rec.OutputPath = outputPath

	archivePath, err := req.Destination.Archive(wctx, req.Source, req.Content)
	if err != nil {
		return nil, p.fail(wctx, req, rec, start, domain.StageArchival, err)
	}
	rec.ArchivePath = archivePath

	rec.Status = domain.StatusSuccess
	rec.Error = ""
	rec.Duration = p.now().Sub(start)
	if err := p.ledger.Complete(wctx, rec); err != nil {
		return nil, fmt.Errorf("%w: ledger completion: %w", domain.ErrStorageUnavailable, err)
	}

	p.record(wctx, req, domain.AuditEntry{
		Kind: domain.AuditProcessing,
		Data: map[string]any{
			"status":            string(rec.Status),
			"duration_ms":       rec.Duration.Milliseconds(),
			"fingerprint":       rec.Fingerprint,
			"output_path":       rec.OutputPath,
			"archive_path":      rec.ArchivePath,
			"selected_tags":     rec.TagNames(),
			"confidence_scores": confidenceMap(rec.Tags),
			"attempts":          attempts,
		},
	})
	p.notify(wctx, domain.Event{
		Kind:       domain.EventProcessed,
		AccountID:  req.AccountID,
		SourceName: req.Source.Name,
		OutputPath: rec.OutputPath,
		Tags:       rec.TagNames(),
		Excerpt:    excerpt(extraction.Text, defaultExcerptLength),
		Timestamp:  p.now(),
	})

	log.Info("processed", "output", rec.OutputPath, "tags", strings.Join(rec.TagNames(), ","), "duration", rec.Duration)
	return &domain.ProcessOutcome{Record: *rec}, nil
}

// extract calls the extractor, retrying transient failures with exponential
// backoff. It returns the number of calls made.
func (p *Pipeline) extract(ctx context.Context, req driving.ProcessRequest, vocabulary []string) (*domain.Extraction, int, error) {
	maxAttempts := p.cfg.Retry.attempts()
	for attempt := 1; ; attempt++ {
		extraction, err := p.extractor.Extract(ctx, driven.ExtractionRequest{
			Content:    req.Content,
			MIMEType:   req.MIMEType,
			Name:       req.Source.Name,
			Vocabulary: vocabulary,
		})
		if err == nil {
			return extraction, attempt, nil
		}
		if !domain.IsTransient(err) || attempt >= maxAttempts {
			return nil, attempt, err
		}

		delay := p.cfg.Retry.Delay(attempt)
		logger.Warn("extraction attempt %d/%d for %s failed, retrying in %s: %v",
			attempt, maxAttempts, req.Source.Name, delay, err)
		if err := p.sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
}

// fail marks the record failed and returns the typed processing error.
func (p *Pipeline) fail(
	ctx context.Context,
	req driving.ProcessRequest,
	rec *domain.ProcessedFile,
	start time.Time,
	stage domain.Stage,
	cause error,
) error {
	procErr := &domain.ProcessingError{Stage: stage, Reason: cause.Error(), Err: cause}

	rec.Status = domain.StatusFailed
	rec.Error = procErr.Error()
	rec.Duration = p.now().Sub(start)
	if err := p.ledger.Complete(ctx, rec); err != nil {
		return errors.Join(procErr, fmt.Errorf("%w: recording failure: %w", domain.ErrStorageUnavailable, err))
	}

	logger.Warn("processing %s failed at %s: %v", req.Source.Name, stage, cause)
	p.record(ctx, req, domain.AuditEntry{
		Kind: domain.AuditError,
		Data: map[string]any{
			"stage":       string(stage),
			"error":       cause.Error(),
			"fingerprint": rec.Fingerprint,
			"source_id":   req.Source.ID,
			"attempts":    rec.Attempts,
			"duration_ms": rec.Duration.Milliseconds(),
			"transient":   domain.IsTransient(cause),
		},
	})
	p.notify(ctx, domain.Event{
		Kind:       domain.EventFailed,
		AccountID:  req.AccountID,
		SourceName: req.Source.Name,
		Error:      procErr.Error(),
		Timestamp:  p.now(),
	})
	return procErr
}

// record appends an audit entry. Failures are logged and swallowed.
func (p *Pipeline) record(ctx context.Context, req driving.ProcessRequest, entry domain.AuditEntry) {
	entry.AccountID = req.AccountID
	entry.Source = req.Source.Name
	entry.Timestamp = p.now()

	if p.audit != nil {
		if err := p.audit.Record(ctx, entry); err != nil {
			logger.Debug("audit log %s for %s: %v", entry.Kind, req.Source.Name, err)
		}
	}

	if !p.cfg.PublishLogs {
		return
	}
	pub, ok := req.Destination.(driven.LogPublisher)
	if !ok {
		return
	}
	data, err := entry.Marshal()
	if err == nil {
		err = pub.PublishLog(ctx, entry.FileName(), data)
	}
	if err != nil {
		logger.Debug("publishing audit log %s: %v", entry.FileName(), err)
	}
}

// notify sends an event. Failures are logged and swallowed.
func (p *Pipeline) notify(ctx context.Context, event domain.Event) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, event); err != nil {
		logger.Warn("notification for %s failed: %v", event.SourceName, err)
	}
}

func (p *Pipeline) render(
	extraction *domain.Extraction,
	rec *domain.ProcessedFile,
	summary string,
	source domain.SourceRef,
) []byte {
	text := strings.TrimSpace(extraction.Text) + "\n"
	if p.cfg.OutputFormat != OutputMarkdown {
		return []byte(text)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("summary: " + strconv.Quote(summary) + "\n")
	b.WriteString("source: " + strconv.Quote(source.Name) + "\n")
	b.WriteString("tags:\n  - ocrbox\n")
	for _, t := range rec.Tags {
		b.WriteString("  - " + t.Name + "\n")
	}
	b.WriteString("confidence:\n")
	for _, t := range rec.Tags {
		b.WriteString("  " + t.Name + ": " + strconv.Itoa(t.Confidence) + "\n")
	}
	b.WriteString("created: " + p.now().UTC().Format(time.RFC3339) + "\n")
	b.WriteString("---\n\n")
	b.WriteString(text)
	return []byte(b.String())
}

// titleCandidate prefers the extractor's title and falls back to the first
// non-empty line of text.
func titleCandidate(e *domain.Extraction) string {
	if t := strings.TrimSpace(e.Title); t != "" {
		return t
	}
	for _, line := range strings.Split(e.Text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func confidenceMap(tags []domain.AssignedTag) map[string]int {
	m := make(map[string]int, len(tags))
	for _, t := range tags {
		m[t.Name] = t.Confidence
	}
	return m
}

func excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "…"
}
