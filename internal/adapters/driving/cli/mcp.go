package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ocrbox/internal/adapters/driving/mcp"
)

var mcpHTTPFlag string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the ledger and vocabulary over the Model Context Protocol",
	Long: `Starts an MCP server on stdio, or on HTTP with --http. Assistants can read
ledger totals and recent records, list and teach tags, process local files
and poll remote accounts.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPFlag, "http", "", "listen address for the streamable HTTP transport")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Processing tools need a usable OCR provider; without one the server
	// still exposes the read-only tools.
	opts := appOptions{extractor: cfg.Validate() == nil}
	a, err := openApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ports := &mcp.Ports{
		Ledger:     a.st.ledger,
		Vocabulary: a.vocab,
	}
	if a.local != nil {
		ports.Local = a.local
	}
	if a.synchronizer != nil {
		ports.Sync = a.synchronizer
	}

	server, err := mcp.NewServer(ports, version)
	if err != nil {
		return err
	}
	if mcpHTTPFlag != "" {
		return server.RunHTTP(ctx, mcpHTTPFlag)
	}
	return server.Run(ctx)
}
