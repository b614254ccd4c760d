package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/ocrbox/internal/adapters/driving/web"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
	"github.com/custodia-labs/ocrbox/internal/core/services"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

const lockFile = "ocrbox.lock"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the watcher, the poller and the authorization server",
	Long: `Runs ocrbox until interrupted.

In local mode the inbox directory is processed and watched. In remote mode
every authorized account is polled on the configured interval and the
authorization server listens for new accounts. Mode "both" does both.

Only one serve process may use a data directory at a time.`,
	RunE: runServe,
}

var monitorFlag bool

func init() {
	serveCmd.Flags().BoolVar(&monitorFlag, "monitor", false, "show the terminal monitor and write logs to the logs directory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.Paths.DataDir, lockFile))
	if err := acquireLock(lock); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	a, err := openApp(ctx, cfg, appOptions{extractor: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	fatal := func(err error) {
		logger.Error("fatal: %v", err)
		cancel(err)
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				fatal(fmt.Errorf("%s: %w", name, err))
			}
		}()
	}

	if monitorFlag {
		restore, err := logToFile(cfg.Paths.Logs)
		if err != nil {
			return err
		}
		defer restore()
	}

	logger.Info("ocrbox %s starting in %s mode", version, cfg.Mode)

	var syncer driving.Synchronizer
	if a.synchronizer != nil {
		syncer = a.synchronizer
	}
	scheduler := services.NewScheduler(schedulerConfig(cfg), a.st.scheduler, syncer,
		services.WithRetention(a.audit.Cleanup),
		services.WithFatalHandler(fatal),
	)
	run("scheduler", scheduler.Start)
	go func() {
		<-ctx.Done()
		_ = scheduler.Stop()
	}()

	if a.authorizer != nil {
		server := web.NewServer(a.authorizer, cfg.Dropbox.RedirectURI)
		logger.Info("authorization server listening on %s", cfg.Auth.Listen)
		run("authorization server", func(ctx context.Context) error {
			return server.ListenAndServe(ctx, cfg.Auth.Listen)
		})
	}

	if a.local != nil {
		a.local.SetFatalHandler(fatal)
		logger.Info("watching %s", cfg.Paths.Inbox)
		run("local inbox", a.local.Run)
	}

	if monitorFlag {
		if err := runMonitor(ctx, a); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("monitor: %v", err)
		}
		cancel(nil)
	}

	<-ctx.Done()
	wg.Wait()

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	logger.Info("ocrbox stopped")
	return nil
}

func acquireLock(lock *flock.Flock) error {
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another ocrbox process is using %s", filepath.Dir(lock.Path()))
	}
	return nil
}
