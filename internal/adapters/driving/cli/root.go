// Package cli provides the ocrbox command line.
package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ocrbox/internal/config"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// version is set at build time.
var version = "dev"

var (
	configFlag  string
	verboseFlag bool

	// cfg is loaded before any command that does not opt out.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ocrbox",
	Short: "OCR inbox for local folders and Dropbox accounts",
	Long: `ocrbox watches a local inbox and the Inbox folder of every authorized
Dropbox account. New images are transcribed, tagged from a learnable
vocabulary and written to the Outbox as [tag]_title files. Originals are
moved to the Archive.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default ~/.config/ocrbox/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	logger.SetOutput(cmd.ErrOrStderr())
	if skipConfig(cmd) {
		logger.SetVerbose(verboseFlag)
		return nil
	}

	path, err := configPath()
	if err != nil {
		return err
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded

	if err := logger.SetFormat(strings.ToLower(cfg.Logging.Format)); err != nil {
		return err
	}
	logger.SetVerbose(verboseFlag || strings.EqualFold(cfg.Logging.Level, "debug"))
	return nil
}

func configPath() (string, error) {
	if p := strings.TrimSpace(configFlag); p != "" {
		return p, nil
	}
	return config.DefaultPath()
}

// skipConfig reports whether cmd or a parent opted out of config loading.
func skipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

var skipConfigLoad = map[string]string{"skipConfigLoad": "true"}
