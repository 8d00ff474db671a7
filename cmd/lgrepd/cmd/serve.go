package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lgrepd/lgrepd/internal/config"
	"github.com/lgrepd/lgrepd/internal/logging"
	"github.com/lgrepd/lgrepd/internal/mcp"
	"github.com/lgrepd/lgrepd/internal/registry"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		host      string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Start the lgrepd MCP server, exposing search, index, status,
watch_start, and watch_stop over the Model Context Protocol.

By default it serves on stdio, the transport Claude Code and similar
MCP clients expect. Pass --transport streamable-http to serve over
HTTP on loopback instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, host, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or streamable-http")
	cmd.Flags().StringVar(&host, "host", "", "Host to bind for streamable-http (default from LGREP_HOST or 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to bind for streamable-http (default from LGREP_PORT or 6285)")

	return cmd
}

func runServe(ctx context.Context, transport, host string, port int) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}

	reg := registry.New(cfg, logger)
	defer reg.Close()

	reg.Warm(ctx)

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	dispatcher := mcp.New(reg, logger)
	server := mcp.NewServer(dispatcher, logger)

	logger.Info("lgrepd_starting", "transport", transport, "addr", addr, "max_projects", cfg.MaxProjects)
	return server.Serve(ctx, transport, addr)
}
