// Package config loads ocrbox settings from a TOML file, a .env file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// Operating modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
	ModeBoth   = "both"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OCR providers.
const (
	ProviderGemini    = "gemini"
	ProviderTesseract = "tesseract"
)

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full ocrbox configuration.
type Config struct {
	Mode           string         `toml:"mode"`
	Paths          Paths          `toml:"paths"`
	Storage        Storage        `toml:"storage"`
	OCR            OCR            `toml:"ocr"`
	Retry          Retry          `toml:"retry"`
	Classification Classification `toml:"classification"`
	Sync           Sync           `toml:"sync"`
	Dropbox        Dropbox        `toml:"dropbox"`
	Auth           Auth           `toml:"auth"`
	Notify         Notify         `toml:"notify"`
	Audit          Audit          `toml:"audit"`
	Logging        Logging        `toml:"logging"`
}

// Paths locates local state. Empty entries are derived from DataDir.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	Inbox      string `toml:"inbox"`
	Outbox     string `toml:"outbox"`
	Archive    string `toml:"archive"`
	Logs       string `toml:"logs"`
	Tokens     string `toml:"tokens"`
	Vocabulary string `toml:"vocabulary"`
}

// Storage selects the ledger backend. The sqlite database lives in the
// data dir; DSN is only read for postgres.
type Storage struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// OCR configures text extraction.
type OCR struct {
	Provider string   `toml:"provider"`
	APIKey   string   `toml:"api_key"`
	Model    string   `toml:"model"`
	Timeout  Duration `toml:"timeout"`
}

// Retry controls extraction retries.
type Retry struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
}

// Classification holds tagging thresholds and output naming.
type Classification struct {
	PrimaryThreshold    int    `toml:"primary_threshold"`
	AdditionalThreshold int    `toml:"additional_threshold"`
	MaxAdditionalTags   int    `toml:"max_additional_tags"`
	MaxTitleLength      int    `toml:"max_title_length"`
	OutputFormat        string `toml:"output_format"`
}

// Sync controls remote polling.
type Sync struct {
	PollInterval  Duration `toml:"poll_interval"`
	ExcludedPaths []string `toml:"excluded_paths"`
	InboxPrefix   string   `toml:"inbox_prefix"`
	OutboxPrefix  string   `toml:"outbox_prefix"`
}

// Dropbox holds the app registration.
type Dropbox struct {
	AppKey      string  `toml:"app_key"`
	AppSecret   string  `toml:"app_secret"`
	RedirectURI string  `toml:"redirect_uri"`
	RateLimit   float64 `toml:"rate_limit"`
}

// Auth controls who may authorize and where the callback server listens.
type Auth struct {
	Allowlist  []string `toml:"allowlist"`
	AllowAny   bool     `toml:"allow_any"`
	Listen     string   `toml:"listen"`
	AttemptTTL Duration `toml:"attempt_ttl"`
}

// Notify configures notification sinks. Unset sinks are disabled.
type Notify struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
	SMTP           SMTP   `toml:"smtp"`
}

// SMTP configures the email sink.
type SMTP struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	To       string `toml:"to"`
}

// Enabled reports whether enough is set to send mail.
func (s SMTP) Enabled() bool {
	return s.Host != "" && s.From != "" && s.To != ""
}

// Audit controls the audit log.
type Audit struct {
	RetentionDays int  `toml:"retention_days"`
	UploadRemote  bool `toml:"upload_remote"`
}

// Logging controls log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Mode:    ModeLocal,
		Storage: Storage{Driver: DriverSQLite},
		OCR: OCR{
			Provider: ProviderGemini,
			Model:    "gemini-2.5-flash-lite",
			Timeout:  Duration(2 * time.Minute),
		},
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   Duration(2 * time.Second),
			MaxDelay:    Duration(30 * time.Second),
		},
		Classification: Classification{
			PrimaryThreshold:    80,
			AdditionalThreshold: 70,
			MaxAdditionalTags:   3,
			MaxTitleLength:      30,
			OutputFormat:        "text",
		},
		Sync: Sync{
			PollInterval:  Duration(30 * time.Second),
			ExcludedPaths: []string{"/Outbox", "/Archive", "/Logs"},
			InboxPrefix:   "/Inbox",
			OutboxPrefix:  "/Outbox",
		},
		Dropbox: Dropbox{
			RedirectURI: "http://localhost:8080/oauth/callback",
			RateLimit:   8,
		},
		Auth: Auth{
			Listen:     ":8080",
			AttemptTTL: Duration(10 * time.Minute),
		},
		Notify: Notify{SMTP: SMTP{Port: 587}},
		Audit:  Audit{RetentionDays: 30},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}

// DefaultPath returns ~/.config/ocrbox/config.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ocrbox", "config.toml"), nil
}

// Load reads path over the defaults, then applies .env and environment
// overrides and fills derived paths. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %w", domain.ErrValidation, path, err)
			}
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, readable only by the owner.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.OCR.APIKey = mask(c.OCR.APIKey)
	out.Dropbox.AppSecret = mask(c.Dropbox.AppSecret)
	out.Notify.TelegramToken = mask(c.Notify.TelegramToken)
	out.Notify.SMTP.Password = mask(c.Notify.SMTP.Password)
	out.Storage.DSN = maskDSN(c.Storage.DSN)
	return &out
}

// RemoteEnabled reports whether remote accounts are polled.
func (c *Config) RemoteEnabled() bool {
	return c.Mode == ModeRemote || c.Mode == ModeBoth
}

// LocalEnabled reports whether the local inbox is watched.
func (c *Config) LocalEnabled() bool {
	return c.Mode == ModeLocal || c.Mode == ModeBoth
}

// resolvePaths derives unset paths from the data dir.
func (c *Config) resolvePaths() error {
	p := &c.Paths
	if p.DataDir == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving data dir: %w", err)
		}
		p.DataDir = filepath.Join(dir, ".ocrbox")
	}
	derive := func(field *string, name string) {
		if *field == "" {
			*field = filepath.Join(p.DataDir, name)
		}
	}
	derive(&p.Inbox, "Inbox")
	derive(&p.Outbox, "Outbox")
	derive(&p.Archive, "Archive")
	derive(&p.Logs, "Logs")
	derive(&p.Tokens, "tokens")
	derive(&p.Vocabulary, "tags.txt")
	return nil
}

// Validate returns an ErrValidation describing the first bad field.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
	}

	switch c.Mode {
	case ModeLocal, ModeRemote, ModeBoth:
	default:
		return bad("mode must be local, remote or both, got %q", c.Mode)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return bad("storage.dsn is required for postgres")
		}
	default:
		return bad("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}

	switch c.OCR.Provider {
	case ProviderGemini:
		if c.OCR.APIKey == "" {
			return bad("ocr.api_key is required for gemini")
		}
	case ProviderTesseract:
	default:
		return bad("ocr.provider must be gemini or tesseract, got %q", c.OCR.Provider)
	}

	if c.Retry.MaxAttempts < 1 {
		return bad("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return bad("retry delays must not be negative")
	}

	cl := c.Classification
	if cl.PrimaryThreshold < 0 || cl.PrimaryThreshold > 100 {
		return bad("classification.primary_threshold must be 0..100")
	}
	if cl.AdditionalThreshold < 0 || cl.AdditionalThreshold > 100 {
		return bad("classification.additional_threshold must be 0..100")
	}
	if cl.MaxAdditionalTags < 1 || cl.MaxAdditionalTags > 5 {
		return bad("classification.max_additional_tags must be 1..5")
	}
	if cl.MaxTitleLength < 5 {
		return bad("classification.max_title_length must be at least 5")
	}
	if cl.OutputFormat != "text" && cl.OutputFormat != "markdown" {
		return bad("classification.output_format must be text or markdown")
	}

	if c.RemoteEnabled() {
		if c.Dropbox.AppKey == "" || c.Dropbox.AppSecret == "" {
			return bad("dropbox.app_key and dropbox.app_secret are required for remote mode")
		}
		u, err := url.Parse(c.Dropbox.RedirectURI)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return bad("dropbox.redirect_uri must be an absolute URL")
		}
		if c.Sync.PollInterval.Std() < time.Second {
			return bad("sync.poll_interval must be at least 1s")
		}
		if len(c.Auth.Allowlist) == 0 && !c.Auth.AllowAny {
			return bad("auth.allowlist is empty; list accounts or set auth.allow_any")
		}
	}

	if c.Audit.RetentionDays < 0 {
		return bad("audit.retention_days must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "text", "json":
	default:
		return bad("logging.format must be auto, text or json")
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
