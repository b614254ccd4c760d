package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ocrbox/internal/adapters/driving/web"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

var noBrowserFlag bool

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Authorize a Dropbox account",
	Long: `Starts an authorization attempt, opens the consent page in a browser and
waits for the provider to redirect back to the local callback server.

The redirect URI configured in the Dropbox app console must match
dropbox.redirect_uri. Only accounts on the allowlist are accepted.`,
	RunE: runAuthorize,
}

func init() {
	authorizeCmd.Flags().BoolVar(&noBrowserFlag, "no-browser", false, "print the URL without opening a browser")
	rootCmd.AddCommand(authorizeCmd)
}

func runAuthorize(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireRemote(); err != nil {
		return err
	}

	attempt, url, err := a.authorizer.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting authorization: %w", err)
	}

	serverCtx, stop := context.WithCancel(ctx)
	defer stop()
	server := web.NewServer(a.authorizer, cfg.Dropbox.RedirectURI)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(serverCtx, cfg.Auth.Listen)
	}()

	cmd.Println("Open this URL to authorize ocrbox:")
	cmd.Printf("\n  %s\n\n", url)
	if !noBrowserFlag {
		if err := web.OpenBrowser(url); err != nil {
			logger.Debug("open browser: %v", err)
		}
	}
	cmd.Printf("Waiting for the callback on %s ...\n", cfg.Dropbox.RedirectURI)

	waitCtx, cancelWait := context.WithTimeout(ctx, cfg.Auth.AttemptTTL.Std())
	defer cancelWait()

	done := make(chan struct{})
	var final *domain.AuthAttempt
	var waitErr error
	go func() {
		defer close(done)
		final, waitErr = a.authorizer.Wait(waitCtx, attempt.ID)
	}()

	select {
	case <-done:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("callback server: %w", err)
		}
		<-done
	}

	stop()
	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: no callback received", domain.ErrAttemptExpired)
		}
		return waitErr
	}
	return reportAttempt(cmd, final)
}

func reportAttempt(cmd *cobra.Command, attempt *domain.AuthAttempt) error {
	if attempt.State != domain.AttemptCompleted {
		return fmt.Errorf("authorization %s: %s", attempt.State, orDash(attempt.AbortReason))
	}
	cmd.Printf("Authorized %s (%s).\n", orDash(attempt.Email), attempt.AccountID)
	cmd.Println("Run `ocrbox serve` to start processing this account.")
	return nil
}
