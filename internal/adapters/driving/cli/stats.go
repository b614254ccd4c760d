package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

var (
	recentFlag  int
	accountFlag string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show processing ledger totals",
	Long: `Prints per-account counts of processed, failed and pending files.
With --recent, lists the newest ledger records for one account scope
(the local inbox when --account is empty).`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&recentFlag, "recent", 0, "show the N newest records")
	statsCmd.Flags().StringVar(&accountFlag, "account", "", "account scope for --recent")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if recentFlag > 0 {
		records, err := a.st.ledger.Recent(ctx, accountFlag, recentFlag)
		if err != nil {
			return err
		}
		cmd.Println(renderRecent(records))
		return nil
	}

	stats, err := a.st.ledger.Stats(ctx)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		cmd.Println("Nothing processed yet.")
		return nil
	}
	cmd.Println(renderStats(stats))
	return nil
}

func accountLabel(id string) string {
	if id == domain.LocalAccount {
		return "(local)"
	}
	return id
}

func renderStats(stats []domain.LedgerStats) string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			accountLabel(s.AccountID),
			strconv.Itoa(s.Success),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Pending),
			strconv.Itoa(s.Total()),
			formatTime(s.LastAt),
		})
	}
	return renderTable(
		[]string{"Account", "Success", "Failed", "Pending", "Total", "Last"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderRecent(records []domain.ProcessedFile) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		detail := r.OutputPath
		if r.Status == domain.StatusFailed {
			detail = r.Error
		}
		rows = append(rows, []string{
			formatTime(r.UpdatedAt),
			r.SourceName,
			string(r.Status),
			orDash(detail),
		})
	}
	return renderTable([]string{"Updated", "Source", "Status", "Output / Error"}, rows, nil)
}
