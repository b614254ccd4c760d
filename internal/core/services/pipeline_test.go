package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ocrbox/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ocrbox/internal/classification"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
)

type pipelineFixture struct {
	ledger    *memory.Ledger
	extractor *mockExtractor
	audit     *mockAuditLog
	notifier  *mockNotifier
	dest      *mockDestination
	sleeps    []time.Duration
	pipeline  *Pipeline
}

func newPipelineFixture(t *testing.T, cfg PipelineConfig, extractor *mockExtractor) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		ledger:    memory.NewLedger(),
		extractor: extractor,
		audit:     &mockAuditLog{},
		notifier:  &mockNotifier{},
		dest:      newMockDestination(),
	}
	registry := classification.NewRegistry(classification.DefaultSeedTags, memory.NewVocabularyStore())
	f.pipeline = NewPipeline(f.ledger, extractor, registry, cfg,
		WithAuditLog(f.audit),
		WithNotifier(f.notifier),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		}),
	)
	return f
}

func receiptExtraction() *domain.Extraction {
	return &domain.Extraction{
		Text:  "Corner Shop\nMilk 1.20\nBread 2.10\n",
		Title: "Corner shop receipt",
		Proposals: []domain.TagProposal{
			{Name: "receipts", Confidence: 92, Primary: true},
			{Name: "finance", Confidence: 75},
			{Name: "travel", Confidence: 40},
		},
		Raw:   `{"text":"..."}`,
		Model: "mock",
	}
}

func (f *pipelineFixture) request(content string) driving.ProcessRequest {
	return driving.ProcessRequest{
		Content:     []byte(content),
		Source:      domain.SourceRef{ID: "id1", Path: "/Inbox/scan.png", Name: "scan.png"},
		AccountID:   "acct",
		Destination: f.dest,
	}
}

func TestPipeline_ProcessSuccess(t *testing.T) {
	f := newPipelineFixture(t, DefaultPipelineConfig(), &mockExtractor{results: []*domain.Extraction{receiptExtraction()}})

	outcome, err := f.pipeline.Process(context.Background(), f.request("image-bytes"))
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.False(t, outcome.AlreadyProcessed)

	rec := outcome.Record
	assert.Equal(t, domain.StatusSuccess, rec.Status)
	assert.Equal(t, "/out/[receipts][finance]_corner-shop-receipt.txt", rec.OutputPath)
	assert.Equal(t, "/archive/scan.png", rec.ArchivePath)
	assert.Equal(t, []string{"receipts", "finance"}, rec.TagNames())
	assert.Equal(t, Fingerprint([]byte("image-bytes")), rec.Fingerprint)

	stored, err := f.ledger.Get(context.Background(), rec.Fingerprint, "acct")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, stored.Status)

	assert.Equal(t, "Corner Shop\nMilk 1.20\nBread 2.10\n", string(f.dest.outputs[rec.OutputPath]))
	assert.Equal(t, []domain.AuditKind{domain.AuditExtraction, domain.AuditClassification, domain.AuditProcessing}, f.audit.Kinds())

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventProcessed, events[0].Kind)
	assert.Equal(t, []string{"receipts", "finance"}, events[0].Tags)

	require.Len(t, f.extractor.reqs, 1)
	assert.Contains(t, f.extractor.reqs[0].Vocabulary, "receipts")
}

func TestPipeline_Idempotent(t *testing.T) {
	f := newPipelineFixture(t, DefaultPipelineConfig(), &mockExtractor{results: []*domain.Extraction{receiptExtraction()}})
	ctx := context.Background()

	first, err := f.pipeline.Process(ctx, f.request("same"))
	require.NoError(t, err)

	second, err := f.pipeline.Process(ctx, f.request("same"))
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, 1, f.extractor.Calls())
	assert.Equal(t, first.Record.OutputPath, second.Record.OutputPath)
	assert.Equal(t, first.Record.TagNames(), second.Record.TagNames())
	assert.Len(t, f.dest.outputs, 1)
}

func TestPipeline_RetriesTransientFailures(t *testing.T) {
	extractor := &mockExtractor{
		errs:    []error{domain.ErrTransient, domain.ErrTransient},
		results: []*domain.Extraction{nil, nil, receiptExtraction()},
	}
	f := newPipelineFixture(t, DefaultPipelineConfig(), extractor)

	outcome, err := f.pipeline.Process(context.Background(), f.request("flaky"))
	require.NoError(t, err)
	assert.Equal(t, 3, extractor.Calls())
	assert.Equal(t, domain.StatusSuccess, outcome.Record.Status)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.sleeps)
}

func TestPipeline_RetriesExhausted(t *testing.T) {
	extractor := &mockExtractor{errs: []error{domain.ErrTransient, domain.ErrTransient, domain.ErrTransient, domain.ErrTransient}}
	f := newPipelineFixture(t, DefaultPipelineConfig(), extractor)

	_, err := f.pipeline.Process(context.Background(), f.request("down"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.Equal(t, 3, extractor.Calls())

	rec, err := f.ledger.Get(context.Background(), Fingerprint([]byte("down")), "acct")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
}

func TestPipeline_PermanentFailureNotRetried(t *testing.T) {
	extractor := &mockExtractor{errs: []error{errors.New("invalid image")}}
	f := newPipelineFixture(t, DefaultPipelineConfig(), extractor)

	_, err := f.pipeline.Process(context.Background(), f.request("bad"))
	var procErr *domain.ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, domain.StageExtraction, procErr.Stage)
	assert.Equal(t, 1, extractor.Calls())
	assert.Empty(t, f.sleeps)

	assert.Contains(t, f.audit.Kinds(), domain.AuditError)
	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventFailed, events[0].Kind)
}

func TestPipeline_FailedItemIsRetriedOnNextCall(t *testing.T) {
	extractor := &mockExtractor{
		errs:    []error{errors.New("invalid")},
		results: []*domain.Extraction{nil, receiptExtraction()},
	}
	f := newPipelineFixture(t, DefaultPipelineConfig(), extractor)
	ctx := context.Background()

	_, err := f.pipeline.Process(ctx, f.request("again"))
	require.Error(t, err)

	outcome, err := f.pipeline.Process(ctx, f.request("again"))
	require.NoError(t, err)
	assert.False(t, outcome.AlreadyProcessed)
	assert.Equal(t, 2, outcome.Record.Attempts)
}

func TestPipeline_OutputFailureSkipsArchive(t *testing.T) {
	f := newPipelineFixture(t, DefaultPipelineConfig(), &mockExtractor{results: []*domain.Extraction{receiptExtraction()}})
	f.dest.outputErr = errors.New("quota exceeded")

	_, err := f.pipeline.Process(context.Background(), f.request("x"))
	assert.ErrorIs(t, err, domain.ErrOutputWriteFailed)
	assert.Empty(t, f.dest.archived)

	rec, err := f.ledger.Get(context.Background(), Fingerprint([]byte("x")), "acct")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "quota exceeded")
}

func TestPipeline_ArchiveFailure(t *testing.T) {
	f := newPipelineFixture(t, DefaultPipelineConfig(), &mockExtractor{results: []*domain.Extraction{receiptExtraction()}})
	f.dest.archiveErr = errors.New("conflict")

	_, err := f.pipeline.Process(context.Background(), f.request("y"))
	assert.ErrorIs(t, err, domain.ErrArchivalFailed)
	assert.Len(t, f.dest.outputs, 1)

	rec, err := f.ledger.Get(context.Background(), Fingerprint([]byte("y")), "acct")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
}

func TestPipeline_SideEffectFailuresSwallowed(t *testing.T) {
	f := newPipelineFixture(t, DefaultPipelineConfig(), &mockExtractor{results: []*domain.Extraction{receiptExtraction()}})
	f.audit.err = errors.New("audit disk full")
	f.notifier.err = errors.New("ntfy down")

	outcome, err := f.pipeline.Process(context.Background(), f.request("z"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, outcome.Record.Status)
}

func TestPipeline_LowConfidencePrimaryIsUncategorized(t *testing.T) {
	extraction := receiptExtraction()
	extraction.Proposals[0].Confidence = 60
	f := newPipelineFixture(t, DefaultPipelineConfig(), &mockExtractor{results: []*domain.Extraction{extraction}})

	outcome, err := f.pipeline.Process(context.Background(), f.request("low"))
	require.NoError(t, err)
	assert.Equal(t, domain.UncategorizedTag, outcome.Record.TagNames()[0])
	assert.True(t, strings.HasPrefix(outcome.Record.OutputPath, "/out/[uncategorized]"))
}

func TestPipeline_NameCollisionGetsSuffix(t *testing.T) {
	f := newPipelineFixture(t, DefaultPipelineConfig(), &mockExtractor{results: []*domain.Extraction{receiptExtraction()}})
	ctx := context.Background()

	first, err := f.pipeline.Process(ctx, f.request("one"))
	require.NoError(t, err)
	second, err := f.pipeline.Process(ctx, f.request("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Record.OutputPath, second.Record.OutputPath)
	assert.Equal(t, "/out/[receipts][finance]_corner-shop-receipt-1.txt", second.Record.OutputPath)
}

func TestPipeline_MarkdownOutput(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.OutputFormat = OutputMarkdown
	cfg.PublishLogs = true
	f := newPipelineFixture(t, cfg, &mockExtractor{results: []*domain.Extraction{receiptExtraction()}})
	f.pipeline.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	outcome, err := f.pipeline.Process(context.Background(), f.request("md"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(outcome.Record.OutputPath, ".md"))

	body := string(f.dest.outputs[outcome.Record.OutputPath])
	assert.True(t, strings.HasPrefix(body, "---\n"))
	assert.Contains(t, body, "summary: \"Corner shop receipt\"")
	assert.Contains(t, body, "  - receipts\n")
	assert.Contains(t, body, "  receipts: 92\n")
	assert.Contains(t, body, "created: 2026-03-01T10:00:00Z")

	assert.Contains(t, f.dest.logs, "scan_processing.json")
}

func TestPipeline_Validation(t *testing.T) {
	f := newPipelineFixture(t, DefaultPipelineConfig(), &mockExtractor{})

	req := f.request("")
	_, err := f.pipeline.Process(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	req = f.request("x")
	req.Destination = nil
	_, err = f.pipeline.Process(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, f.extractor.Calls())
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("  short  ", 10))
	assert.Equal(t, "abc…", excerpt("abcdef", 3))
}

func TestPipeline_SnifferRejectsContent(t *testing.T) {
	extractor := &mockExtractor{results: []*domain.Extraction{receiptExtraction()}}
	f := newPipelineFixture(t, DefaultPipelineConfig(), extractor)
	f.pipeline.sniff = func([]byte) (string, error) {
		return "", errors.New("validation error: unsupported image")
	}

	_, err := f.pipeline.Process(context.Background(), f.request("not-an-image"))
	require.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.Zero(t, extractor.Calls())

	stored, err := f.ledger.Get(context.Background(), Fingerprint([]byte("not-an-image")), "acct")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestPipeline_SnifferFillsMIMEType(t *testing.T) {
	extractor := &mockExtractor{results: []*domain.Extraction{receiptExtraction()}}
	f := newPipelineFixture(t, DefaultPipelineConfig(), extractor)
	WithSniffer(func([]byte) (string, error) { return "image/png", nil })(f.pipeline)

	_, err := f.pipeline.Process(context.Background(), f.request("png-bytes"))
	require.NoError(t, err)
	require.Len(t, extractor.reqs, 1)
	assert.Equal(t, "image/png", extractor.reqs[0].MIMEType)
}

// lateLedger hides records from Get, as if another writer completed them
// after the lookup.
type lateLedger struct {
	*memory.Ledger
	hidden int
}

func (l *lateLedger) Get(ctx context.Context, fingerprint, accountID string) (*domain.ProcessedFile, error) {
	if l.hidden > 0 {
		l.hidden--
		return nil, domain.ErrNotFound
	}
	return l.Ledger.Get(ctx, fingerprint, accountID)
}

func TestPipeline_ConcurrentWriterFinishedFirst(t *testing.T) {
	ctx := context.Background()
	done := &domain.ProcessedFile{Fingerprint: Fingerprint([]byte("raced")), AccountID: "acct"}
	ledger := &lateLedger{Ledger: memory.NewLedger(), hidden: 1}
	require.NoError(t, ledger.Reserve(ctx, done))
	done.Status = domain.StatusSuccess
	done.OutputPath = "/out/[receipts]_corner-shop-receipt.txt"
	require.NoError(t, ledger.Complete(ctx, done))

	extractor := &mockExtractor{results: []*domain.Extraction{receiptExtraction()}}
	f := newPipelineFixture(t, DefaultPipelineConfig(), extractor)
	registry := classification.NewRegistry(classification.DefaultSeedTags, memory.NewVocabularyStore())
	f.pipeline = NewPipeline(ledger, extractor, registry, DefaultPipelineConfig())

	outcome, err := f.pipeline.Process(ctx, f.request("raced"))
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyProcessed)
	assert.Equal(t, done.OutputPath, outcome.Record.OutputPath)
	assert.Zero(t, extractor.Calls())
	assert.Empty(t, f.dest.outputs)
}

func TestPipeline_MarkdownSummaryKeepsHumanTitle(t *testing.T) {
	extraction := receiptExtraction()
	extraction.Title = `Invoice "March" 2026`
	cfg := DefaultPipelineConfig()
	cfg.OutputFormat = OutputMarkdown
	f := newPipelineFixture(t, cfg, &mockExtractor{results: []*domain.Extraction{extraction}})

	outcome, err := f.pipeline.Process(context.Background(), f.request("quoted"))
	require.NoError(t, err)

	body := string(f.dest.outputs[outcome.Record.OutputPath])
	assert.Contains(t, body, `summary: "Invoice \"March\" 2026"`)
	assert.NotContains(t, body, "summary: \""+outcome.Record.Title+"\"")
}
