package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync [account-id]",
	Short: "Poll remote accounts once",
	Long: `Runs one poll cycle against the remote inbox of every authorized account,
or of the given account, and prints what was processed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, appOptions{extractor: true})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireRemote(); err != nil {
		return err
	}

	var results []domain.AccountSyncResult
	if len(args) == 1 {
		results = []domain.AccountSyncResult{a.synchronizer.PollAccount(ctx, args[0])}
	} else {
		results, err = a.synchronizer.PollAll(ctx)
	}
	if len(results) == 0 && err == nil {
		cmd.Println("No accounts authorized.")
		return nil
	}

	cmd.Println(renderSyncResults(results))
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("sync of %s failed: %w", r.AccountID, r.Err)
		}
	}
	return nil
}

func renderSyncResults(results []domain.AccountSyncResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if r.FullResync {
			status = "resynced"
		}
		if r.Err != nil {
			status = r.Err.Error()
		}
		rows = append(rows, []string{
			r.AccountID,
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Learned),
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			status,
		})
	}
	return renderTable(
		[]string{"Account", "Processed", "Skipped", "Failed", "Learned", "Took", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}
