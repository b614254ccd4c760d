package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Process local image files once",
	Long: `Runs each file through the pipeline as if it had been dropped into the
local inbox. Files already in the ledger are reported and skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, appOptions{extractor: true})
	if err != nil {
		return err
	}
	defer a.Close()
	if a.local == nil {
		return fmt.Errorf("%w: local mode is disabled; set mode to local or both", domain.ErrValidation)
	}

	var failed int
	for _, path := range args {
		outcome, err := a.local.ProcessFile(ctx, path)
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return err
		}
		if err != nil {
			failed++
			logger.Error("%s: %v", path, err)
			continue
		}
		cmd.Println(describeOutcome(path, outcome))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func describeOutcome(path string, outcome *domain.ProcessOutcome) string {
	rec := outcome.Record
	if outcome.AlreadyProcessed {
		return fmt.Sprintf("%s: already processed as %s", path, orDash(rec.OutputPath))
	}
	return fmt.Sprintf("%s -> %s (%d attempts, %s)", path, rec.OutputPath, rec.Attempts, rec.Duration.Round(time.Millisecond))
}
