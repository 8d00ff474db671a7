package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lgrepd/lgrepd/internal/config"
	"github.com/lgrepd/lgrepd/internal/registry"
)

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <path>",
		Short: "Evict a project from memory, keeping its on-disk cache",
		Long: `Stop the project's watcher and drop it from the in-memory registry.
The on-disk chunk store is preserved; a later search or index call
re-opens it. This is administrative only and not exposed as an MCP
tool.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.OutOrStdout(), args[0])
		},
	}
	return cmd
}

func runRemove(out io.Writer, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	cfg := config.Load()
	logger := setupLogging()
	reg := registry.New(cfg, logger)
	defer reg.Close()

	if err := reg.Remove(abs); err != nil {
		return err
	}
	fmt.Fprintf(out, "removed %s\n", abs)
	return nil
}
