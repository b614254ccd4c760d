package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage authorized accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List authorized accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountsList,
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <account-id>",
	Short: "Forget an account and its sync cursor",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsRemove,
}

func init() {
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
	rootCmd.AddCommand(accountsCmd)
}

func runAccountsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	creds, err := a.credentials.List(ctx)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		cmd.Println("No accounts authorized. Run `ocrbox authorize` to add one.")
		return nil
	}

	rows := make([][]string, 0, len(creds))
	for _, c := range creds {
		rows = append(rows, []string{
			c.AccountID,
			orDash(c.Email),
			formatTime(c.AuthorizedAt),
			formatTime(c.RefreshedAt),
		})
	}
	cmd.Println(renderTable(
		[]string{"Account", "Email", "Authorized", "Refreshed"},
		rows,
		nil,
	))
	return nil
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	id := args[0]
	if _, err := a.credentials.Get(ctx, id); err != nil {
		return fmt.Errorf("account %s: %w", id, err)
	}
	if err := a.credentials.Remove(ctx, id); err != nil {
		return err
	}
	if err := a.st.cursors.Delete(ctx, id); err != nil {
		return fmt.Errorf("removing cursor for %s: %w", id, err)
	}
	cmd.Printf("Removed account %s.\n", id)
	return nil
}
