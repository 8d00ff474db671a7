package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lgrepd/lgrepd/internal/config"
	"github.com/lgrepd/lgrepd/internal/mcp"
	"github.com/lgrepd/lgrepd/internal/registry"
)

func newSearchCmd() *cobra.Command {
	var (
		limit    int
		noHybrid bool
	)

	cmd := &cobra.Command{
		Use:   "search <query> [path]",
		Short: "Search an indexed project",
		Long: `Search a project's hybrid (vector + full-text) index for the query.

If the project has never been indexed, it is indexed automatically
before the search runs. path defaults to the current directory.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			path := "."
			if len(args) > 1 {
				path = args[1]
			}
			return runSearch(cmd.Context(), cmd.OutOrStdout(), query, path, limit, !noHybrid)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "m", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&noHybrid, "no-hybrid", false, "Use vector search only, skipping full-text fusion")

	return cmd
}

func runSearch(ctx context.Context, out io.Writer, query, path string, limit int, hybrid bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	cfg := config.Load()
	logger := setupLogging()
	reg := registry.New(cfg, logger)
	defer reg.Close()

	dispatcher := mcp.New(reg, logger)
	envelope := dispatcher.Search(ctx, query, abs, limit, hybrid)
	return printEnvelope(out, envelope)
}

// printEnvelope writes a dispatcher JSON envelope to out and turns an
// {"error": "..."} envelope into a non-nil error, so RunE reports it via
// cobra and main exits 1.
func printEnvelope(out io.Writer, envelope string) error {
	fmt.Fprintln(out, envelope)

	var errOut struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(envelope), &errOut); err == nil && errOut.Error != "" {
		return fmt.Errorf("%s", errOut.Error)
	}
	return nil
}
