// Package cmd provides the CLI commands for lgrepd.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lgrepd/lgrepd/internal/logging"
	"github.com/lgrepd/lgrepd/pkg/version"
)

// NewRootCmd creates the root command for the lgrepd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lgrepd",
		Short: "Semantic code search MCP server",
		Long: `lgrepd indexes one or more project directories into a local hybrid
(vector + full-text) search index, and exposes search over the Model
Context Protocol so AI coding assistants can query a codebase by
meaning instead of just by keyword.

Run 'lgrepd serve' to start the MCP server, or use the 'search',
'index', and 'remove' subcommands for one-shot CLI access to the same
operations.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("lgrepd version {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRemoveCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// setupLogging builds a logger for a one-shot CLI invocation: info level
// and above as text on stderr, no file logging, unlike the server's
// rotating-file setup in newServeCmd.
func setupLogging() *slog.Logger {
	level := logging.LevelFromString("info")
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
