// Package main provides the tabula CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/tabula/cli"
)

var (
	// Global flags
	mcpServer     string
	mcpConfig     string
	mcpServerName string
	provider      string
	corpus        string
	verbose       bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "tabula",
		Short: "Natural-language queries against a remote data service",
		Long: `Tabula turns natural-language requests into validated operation plans
and executes them against a remote tabular data service over MCP,
respecting the service's rate and batch limits.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&mcpServer, "mcp", "", "MCP server command, e.g. \"npx -y airtable-mcp-server\"")
	rootCmd.PersistentFlags().StringVar(&mcpConfig, "mcp-config", "", "Path to MCP config file")
	rootCmd.PersistentFlags().StringVar(&mcpServerName, "mcp-server", "", "Server name within the MCP config file")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "Chat LLM provider for fallback classification and narration (openai, anthropic)")
	rootCmd.PersistentFlags().StringVar(&corpus, "corpus", "", "Path to reference documentation (markdown) for grounding")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		MCPServer:     mcpServer,
		MCPConfig:     mcpConfig,
		MCPServerName: mcpServerName,
		Provider:      provider,
		Corpus:        corpus,
		Verbose:       verbose,
	}
}

func queryCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "query [request]",
		Short: "Execute a single natural-language request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunQuery(context.Background(), args[0], sessionID, options())
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID for conversational context")

	return cmd
}

func chatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Long: `Start an interactive session. Schema lookups and recent operations
carry across turns; set TABULA_SESSION_DB to persist sessions on disk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(context.Background(), sessionID, options())
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "default", "Session ID")

	return cmd
}

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [corpus.md]",
		Short: "Embed a reference corpus into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Index(context.Background(), args[0], options())
		},
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the remote server's tool surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(context.Background(), options())
		},
	}
}
