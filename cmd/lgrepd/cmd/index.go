package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lgrepd/lgrepd/internal/config"
	"github.com/lgrepd/lgrepd/internal/mcp"
	"github.com/lgrepd/lgrepd/internal/registry"
)

func newIndexCmd() *cobra.Command {
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Fully (re)index a project directory",
		Long: `Walk path, chunk every recognized file, embed the chunks, and store
them in the project's chunk store. path defaults to the current
directory. Re-running index on an already-indexed project skips
unchanged files by content hash.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd.Context(), cmd.OutOrStdout(), path, chunkSize)
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Override the fallback chunker's token budget (default 500)")

	return cmd
}

func runIndex(ctx context.Context, out io.Writer, path string, chunkSize int) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	cfg := config.Load()
	cfg.ChunkSize = chunkSize
	logger := setupLogging()
	reg := registry.New(cfg, logger)
	defer reg.Close()

	dispatcher := mcp.New(reg, logger)
	envelope := dispatcher.Index(ctx, abs)
	return printEnvelope(out, envelope)
}
