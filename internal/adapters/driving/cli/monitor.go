package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ocrbox/internal/adapters/driving/tui"
	"github.com/custodia-labs/ocrbox/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

const (
	monitorInterval = 2 * time.Second
	monitorRecent   = 15
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch ledger activity in the terminal",
	Long: `Shows per-account totals and the newest records, refreshed every few
seconds. Use ` + "`ocrbox serve --monitor`" + ` to also see live poller state.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()
		return runMonitor(ctx, a)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(ctx context.Context, a *app) error {
	m, err := tui.NewMonitor(ctx, a.snapshot, monitorInterval)
	if err != nil {
		return err
	}
	return m.Run()
}

// snapshot reads ledger totals, the newest records of accountID and, when
// this process runs the pollers, their live state.
func (a *app) snapshot(ctx context.Context, accountID string) (messages.Snapshot, error) {
	snap := messages.Snapshot{TakenAt: time.Now()}

	var err error
	if snap.Stats, err = a.st.ledger.Stats(ctx); err != nil {
		return snap, err
	}
	if snap.Recent, err = a.st.ledger.Recent(ctx, accountID, monitorRecent); err != nil {
		return snap, err
	}

	if a.synchronizer != nil {
		creds, err := a.credentials.List(ctx)
		if err != nil {
			return snap, err
		}
		snap.Accounts = make([]driving.SyncStatus, 0, len(creds))
		for _, c := range creds {
			snap.Accounts = append(snap.Accounts, a.synchronizer.Status(c.AccountID))
		}
	}
	return snap, nil
}

// logToFile sends log output to a file under the logs directory while the
// monitor owns the terminal.
func logToFile(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "ocrbox.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	logger.SetOutput(f)
	return func() {
		logger.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}
