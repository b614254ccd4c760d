package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envVar binds an environment variable to a config field. Legacy names are
// read first so the OCRBOX_ name wins when both are set.
type envVar struct {
	names []string
	set   func(c *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// duration accepts Go durations ("45s") or bare integers in seconds, the
// form the legacy variables use.
func duration(field func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		v = strings.TrimSpace(v)
		if n, err := strconv.Atoi(v); err == nil {
			*field(c) = Duration(time.Duration(n) * time.Second)
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = Duration(d)
		return nil
	}
}

func list(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*field(c) = out
		return nil
	}
}

var envVars = []envVar{
	{[]string{"MODE", "OCRBOX_MODE"}, func(c *Config, v string) error {
		c.Mode = strings.ToLower(strings.TrimSpace(v))
		if c.Mode == "dropbox" {
			c.Mode = ModeRemote
		}
		return nil
	}},
	{[]string{"DATA_DIR", "OCRBOX_DATA_DIR"}, str(func(c *Config) *string { return &c.Paths.DataDir })},
	{[]string{"OCRBOX_INBOX_DIR"}, str(func(c *Config) *string { return &c.Paths.Inbox })},
	{[]string{"OCRBOX_OUTBOX_DIR"}, str(func(c *Config) *string { return &c.Paths.Outbox })},
	{[]string{"OCRBOX_ARCHIVE_DIR"}, str(func(c *Config) *string { return &c.Paths.Archive })},
	{[]string{"OCRBOX_LOGS_DIR"}, str(func(c *Config) *string { return &c.Paths.Logs })},
	{[]string{"OCRBOX_TOKENS_DIR"}, str(func(c *Config) *string { return &c.Paths.Tokens })},
	{[]string{"OCRBOX_VOCABULARY_FILE"}, str(func(c *Config) *string { return &c.Paths.Vocabulary })},
	{[]string{"OCRBOX_STORAGE_DRIVER"}, str(func(c *Config) *string { return &c.Storage.Driver })},
	{[]string{"DATABASE_URL", "OCRBOX_STORAGE_DSN"}, str(func(c *Config) *string { return &c.Storage.DSN })},
	{[]string{"OCRBOX_OCR_PROVIDER"}, str(func(c *Config) *string { return &c.OCR.Provider })},
	{[]string{"GEMINI_API_KEY", "OCRBOX_OCR_API_KEY"}, str(func(c *Config) *string { return &c.OCR.APIKey })},
	{[]string{"GEMINI_MODEL", "OCRBOX_OCR_MODEL"}, str(func(c *Config) *string { return &c.OCR.Model })},
	{[]string{"MAX_RETRIES", "OCRBOX_RETRY_MAX_ATTEMPTS"}, integer(func(c *Config) *int { return &c.Retry.MaxAttempts })},
	{[]string{"RETRY_DELAY", "OCRBOX_RETRY_BASE_DELAY"}, duration(func(c *Config) *Duration { return &c.Retry.BaseDelay })},
	{[]string{"PRIMARY_TAG_THRESHOLD", "PRIMARY_TAG_CONFIDENCE_THRESHOLD", "OCRBOX_PRIMARY_THRESHOLD"},
		integer(func(c *Config) *int { return &c.Classification.PrimaryThreshold })},
	{[]string{"ADDITIONAL_TAG_THRESHOLD", "ADDITIONAL_TAG_CONFIDENCE_THRESHOLD", "OCRBOX_ADDITIONAL_THRESHOLD"},
		integer(func(c *Config) *int { return &c.Classification.AdditionalThreshold })},
	{[]string{"MAX_TAGS_PER_FILE", "OCRBOX_MAX_ADDITIONAL_TAGS"}, integer(func(c *Config) *int { return &c.Classification.MaxAdditionalTags })},
	{[]string{"MAX_SUMMARY_LENGTH", "OCRBOX_MAX_TITLE_LENGTH"}, integer(func(c *Config) *int { return &c.Classification.MaxTitleLength })},
	{[]string{"OCRBOX_OUTPUT_FORMAT"}, str(func(c *Config) *string { return &c.Classification.OutputFormat })},
	{[]string{"POLL_INTERVAL", "OCRBOX_POLL_INTERVAL"}, duration(func(c *Config) *Duration { return &c.Sync.PollInterval })},
	{[]string{"DROPBOX_APP_KEY", "OCRBOX_DROPBOX_APP_KEY"}, str(func(c *Config) *string { return &c.Dropbox.AppKey })},
	{[]string{"DROPBOX_APP_SECRET", "OCRBOX_DROPBOX_APP_SECRET"}, str(func(c *Config) *string { return &c.Dropbox.AppSecret })},
	{[]string{"DROPBOX_REDIRECT_URI", "OCRBOX_DROPBOX_REDIRECT_URI"}, str(func(c *Config) *string { return &c.Dropbox.RedirectURI })},
	{[]string{"ALLOWED_ACCOUNTS", "OCRBOX_ALLOWLIST"}, list(func(c *Config) *[]string { return &c.Auth.Allowlist })},
	{[]string{"OCRBOX_ALLOW_ANY"}, boolean(func(c *Config) *bool { return &c.Auth.AllowAny })},
	{[]string{"OAUTH_SERVER_PORT"}, func(c *Config, v string) error {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		c.Auth.Listen = fmt.Sprintf(":%d", port)
		return nil
	}},
	{[]string{"OCRBOX_LISTEN"}, str(func(c *Config) *string { return &c.Auth.Listen })},
	{[]string{"NTFY_TOPIC", "OCRBOX_NTFY_TOPIC"}, str(func(c *Config) *string { return &c.Notify.NtfyTopic })},
	{[]string{"TELEGRAM_BOT_TOKEN", "OCRBOX_TELEGRAM_TOKEN"}, str(func(c *Config) *string { return &c.Notify.TelegramToken })},
	{[]string{"TELEGRAM_CHAT_ID", "OCRBOX_TELEGRAM_CHAT_ID"}, str(func(c *Config) *string { return &c.Notify.TelegramChatID })},
	{[]string{"EMAIL_SMTP_HOST", "OCRBOX_SMTP_HOST"}, str(func(c *Config) *string { return &c.Notify.SMTP.Host })},
	{[]string{"EMAIL_SMTP_PORT", "OCRBOX_SMTP_PORT"}, integer(func(c *Config) *int { return &c.Notify.SMTP.Port })},
	{[]string{"EMAIL_USERNAME", "OCRBOX_SMTP_USERNAME"}, str(func(c *Config) *string { return &c.Notify.SMTP.Username })},
	{[]string{"EMAIL_PASSWORD", "OCRBOX_SMTP_PASSWORD"}, str(func(c *Config) *string { return &c.Notify.SMTP.Password })},
	{[]string{"EMAIL_FROM", "OCRBOX_SMTP_FROM"}, str(func(c *Config) *string { return &c.Notify.SMTP.From })},
	{[]string{"EMAIL_TO", "OCRBOX_SMTP_TO"}, str(func(c *Config) *string { return &c.Notify.SMTP.To })},
	{[]string{"OCRBOX_AUDIT_RETENTION_DAYS"}, integer(func(c *Config) *int { return &c.Audit.RetentionDays })},
	{[]string{"OCRBOX_AUDIT_UPLOAD"}, boolean(func(c *Config) *bool { return &c.Audit.UploadRemote })},
	{[]string{"LOG_LEVEL", "OCRBOX_LOG_LEVEL"}, func(c *Config, v string) error {
		c.Logging.Level = strings.ToLower(strings.TrimSpace(v))
		return nil
	}},
	{[]string{"OCRBOX_LOG_FORMAT"}, str(func(c *Config) *string { return &c.Logging.Format })},
}

// applyEnv overlays environment variables onto c.
func (c *Config) applyEnv(lookup LookupFunc) error {
	for _, ev := range envVars {
		for _, name := range ev.names {
			v, ok := lookup(name)
			if !ok || v == "" {
				continue
			}
			if err := ev.set(c, v); err != nil {
				return fmt.Errorf("%w: %s=%q: %w", domain.ErrValidation, name, v, err)
			}
		}
	}
	return nil
}

// loadDotEnv reads ./.env into the process environment without overriding
// variables that are already set.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading .env: %w", err)
}
