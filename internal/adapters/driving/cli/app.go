package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/custodia-labs/ocrbox/internal/adapters/driven/auditlog"
	"github.com/custodia-labs/ocrbox/internal/adapters/driven/notify"
	"github.com/custodia-labs/ocrbox/internal/adapters/driven/oauth"
	"github.com/custodia-labs/ocrbox/internal/adapters/driven/ocr/gemini"
	"github.com/custodia-labs/ocrbox/internal/adapters/driven/ocr/tesseract"
	"github.com/custodia-labs/ocrbox/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/ocrbox/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/ocrbox/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ocrbox/internal/classification"
	"github.com/custodia-labs/ocrbox/internal/config"
	"github.com/custodia-labs/ocrbox/internal/connectors/dropbox"
	"github.com/custodia-labs/ocrbox/internal/connectors/filesystem"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/core/services"
	"github.com/custodia-labs/ocrbox/internal/imageformat"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

const notifyTimeout = 10 * time.Second

// stores is the durable state shared by every command.
type stores struct {
	ledger     driven.Ledger
	cursors    driven.CursorStore
	vocabulary driven.VocabularyStore
	scheduler  driven.SchedulerStore
	close      func() error
}

// app holds the wired services for one command invocation.
type app struct {
	cfg *config.Config
	st  *stores

	credentials *file.CredentialStore
	vocab       *classification.Registry
	audit       *auditlog.Writer
	notifier    driven.Notifier
	extractor   driven.Extractor
	pipeline    *services.Pipeline

	// Remote side, nil unless remote mode is enabled.
	remotes      *dropbox.Factory
	provider     *oauth.Provider
	credService  *services.CredentialsService
	synchronizer *services.Synchronizer
	authorizer   *services.AuthorizationService

	// Local side, nil unless local mode is enabled.
	local *services.LocalIngest
}

// appOptions selects the optional parts of the wiring.
type appOptions struct {
	// extractor is needed by commands that process content.
	extractor bool
}

// openApp wires services from cfg. Close must be called when done.
func openApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating data dir: %w", domain.ErrStorageUnavailable, err)
	}
	if a.st, err = openStores(ctx, cfg); err != nil {
		return nil, err
	}
	if a.credentials, err = file.NewCredentialStore(cfg.Paths.Tokens); err != nil {
		return nil, err
	}

	seed, err := loadVocabulary(cfg.Paths.Vocabulary)
	if err != nil {
		return nil, err
	}
	a.vocab = classification.NewRegistry(seed, a.st.vocabulary)
	a.audit = auditlog.NewWriter(cfg.Paths.Logs, cfg.Audit.RetentionDays)
	a.notifier = buildNotifier(cfg.Notify)

	if opts.extractor {
		extractor, err := buildExtractor(ctx, cfg.OCR)
		if err != nil {
			return nil, err
		}
		a.extractor = extractor
		a.pipeline = services.NewPipeline(a.st.ledger, a.extractor, a.vocab, pipelineConfig(cfg),
			services.WithAuditLog(a.audit),
			services.WithNotifier(a.notifier),
			services.WithSniffer(sniff),
		)
	}

	if cfg.RemoteEnabled() {
		a.wireRemote()
	}
	if cfg.LocalEnabled() && a.pipeline != nil {
		if err := a.wireLocal(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) wireRemote() {
	cfg := a.cfg
	layout := services.DefaultRemoteLayout()
	if cfg.Sync.InboxPrefix != "" {
		layout.Inbox = cfg.Sync.InboxPrefix
	}
	if cfg.Sync.OutboxPrefix != "" {
		layout.Outbox = cfg.Sync.OutboxPrefix
	}

	a.remotes = dropbox.NewFactory(dropbox.FactoryConfig{
		RateLimit: dropbox.RateLimitConfig{
			RequestsPerSecond: cfg.Dropbox.RateLimit,
			BurstSize:         dropbox.DefaultRateLimit.BurstSize,
		},
	})
	a.provider = oauth.NewProvider(oauth.DropboxConfig(cfg.Dropbox.AppKey, cfg.Dropbox.AppSecret), a.remotes.Identify)
	a.credService = services.NewCredentialsService(a.credentials, a.provider)

	a.authorizer = services.NewAuthorizationService(
		a.provider,
		a.credentials,
		domain.NewAllowlist(cfg.Auth.Allowlist, cfg.Auth.AllowAny),
		cfg.Dropbox.RedirectURI,
		services.WithAttemptTTL(cfg.Auth.AttemptTTL.Std()),
		services.WithProvisioner(services.NewRemoteProvisioner(a.remotes, layout, nil)),
	)

	if a.pipeline == nil {
		return
	}
	syncCfg := services.DefaultSyncConfig()
	syncCfg.Layout = layout
	syncCfg.ExcludedPaths = cfg.Sync.ExcludedPaths
	syncCfg.Accept = imageformat.IsImageName
	a.synchronizer = services.NewSynchronizer(
		a.credentials, a.st.cursors, a.remotes, a.credService,
		a.pipeline, a.st.ledger, a.vocab, syncCfg,
	)
	a.synchronizer.SetNotifier(a.notifier)
}

func (a *app) wireLocal() error {
	dest, err := filesystem.NewDestination(a.cfg.Paths.Outbox, a.cfg.Paths.Archive)
	if err != nil {
		return fmt.Errorf("preparing local outbox: %w", err)
	}
	if err := os.MkdirAll(a.cfg.Paths.Inbox, 0o755); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}
	source := filesystem.NewSource(a.cfg.Paths.Inbox, a.cfg.Paths.Outbox, filesystem.DefaultDebounce)
	a.local = services.NewLocalIngest(source, a.pipeline, dest, a.st.ledger, a.vocab, imageformat.IsImageName)
	return nil
}

// Close releases stores and clients.
func (a *app) Close() error {
	var errs []error
	if c, ok := a.extractor.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.st != nil && a.st.close != nil {
		errs = append(errs, a.st.close())
	}
	return errors.Join(errs...)
}

// requireRemote fails when remote mode is off.
func (a *app) requireRemote() error {
	if a.authorizer == nil {
		return fmt.Errorf("%w: remote mode is disabled; set mode to remote or both", domain.ErrValidation)
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		return &stores{
			ledger:     pg.Ledger(),
			cursors:    pg.CursorStore(),
			vocabulary: pg.VocabularyStore(),
			scheduler:  pg.SchedulerStore(),
			close:      pg.Close,
		}, nil
	default:
		sq, err := sqlite.NewStore(cfg.Paths.DataDir)
		if err != nil {
			return nil, err
		}
		return &stores{
			ledger:     sq.Ledger(),
			cursors:    sq.CursorStore(),
			vocabulary: sq.VocabularyStore(),
			scheduler:  sq.SchedulerStore(),
			close:      sq.Close,
		}, nil
	}
}

// loadVocabulary reads the seed tag file, writing the default vocabulary
// when it does not exist yet.
func loadVocabulary(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data = classification.FormatVocabulary(classification.DefaultSeedTags)
		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			logger.Warn("could not write default vocabulary to %s: %v", path, werr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	return classification.ParseVocabulary(bytes.NewReader(data))
}

func buildExtractor(ctx context.Context, cfg config.OCR) (driven.Extractor, error) {
	if cfg.Provider == config.ProviderTesseract {
		ex, err := tesseract.New()
		if err != nil {
			return nil, err
		}
		return ex, nil
	}
	ex, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout.Std(),
	})
	if err != nil {
		return nil, err
	}
	return ex, nil
}

func buildNotifier(cfg config.Notify) driven.Notifier {
	var sinks []driven.Notifier
	if cfg.NtfyTopic != "" {
		sinks = append(sinks, notify.NewNtfy(cfg.NtfyTopic, notifyTimeout))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, notifyTimeout))
	}
	if cfg.SMTP.Enabled() {
		sinks = append(sinks, notify.NewEmail(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       splitList(cfg.SMTP.To),
		}))
	}
	return notify.Combine(sinks...)
}

func pipelineConfig(cfg *config.Config) services.PipelineConfig {
	pc := services.DefaultPipelineConfig()
	pc.Retry = services.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Std(),
		MaxDelay:    cfg.Retry.MaxDelay.Std(),
	}
	pc.Classification = classification.Settings{
		PrimaryThreshold:    cfg.Classification.PrimaryThreshold,
		AdditionalThreshold: cfg.Classification.AdditionalThreshold,
		MaxAdditional:       cfg.Classification.MaxAdditionalTags,
		MaxTitleLength:      cfg.Classification.MaxTitleLength,
	}
	pc.OutputFormat = cfg.Classification.OutputFormat
	pc.PublishLogs = cfg.Audit.UploadRemote
	return pc
}

func schedulerConfig(cfg *config.Config) domain.SchedulerConfig {
	sc := domain.DefaultSchedulerConfig()
	poll := sc.TaskConfigs[domain.TaskIDRemotePoll]
	poll.Interval = cfg.Sync.PollInterval.Std()
	poll.Enabled = cfg.RemoteEnabled()
	sc.TaskConfigs[domain.TaskIDRemotePoll] = poll

	retention := sc.TaskConfigs[domain.TaskIDAuditRetention]
	retention.Enabled = cfg.Audit.RetentionDays > 0
	sc.TaskConfigs[domain.TaskIDAuditRetention] = retention
	return sc
}

func sniff(content []byte) (string, error) {
	info, err := imageformat.Detect(content)
	if err != nil {
		return "", err
	}
	return info.MIMEType, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
