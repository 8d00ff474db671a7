package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	gosdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lgrepd/lgrepd/pkg/version"
)

// Server wires a Dispatcher to the MCP SDK's tool registration and
// exposes it over line-framed JSON on stdio or streamable HTTP on
// loopback.
type Server struct {
	sdk        *gosdk.Server
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// searchToolInput is the input schema for the search tool.
type searchToolInput struct {
	Query  string `json:"query" jsonschema:"the natural-language search query"`
	Path   string `json:"path" jsonschema:"absolute path to the project to search"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Hybrid *bool  `json:"hybrid,omitempty" jsonschema:"combine vector and full-text search, default true"`
}

type indexToolInput struct {
	Path string `json:"path" jsonschema:"absolute path to the project to index"`
}

type statusToolInput struct {
	Path string `json:"path,omitempty" jsonschema:"absolute path to a single project; omit for all live projects"`
}

type watchStartToolInput struct {
	Path string `json:"path" jsonschema:"absolute path to the project to watch"`
}

type watchStopToolInput struct {
	Path string `json:"path,omitempty" jsonschema:"absolute path to stop watching; omit to stop every watched project"`
}

// toolOutput is the empty structured-output placeholder for every tool:
// the actual payload is always a JSON envelope string carried as text
// content, so clients see one uniform result shape.
type toolOutput struct{}

func textResult(envelope string) *gosdk.CallToolResult {
	return &gosdk.CallToolResult{
		Content: []gosdk.Content{&gosdk.TextContent{Text: envelope}},
	}
}

// NewServer builds a Server exposing dispatcher's five tools.
func NewServer(dispatcher *Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		dispatcher: dispatcher,
		logger:     logger,
	}

	s.sdk = gosdk.NewServer(&gosdk.Implementation{
		Name:    "lgrepd",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	gosdk.AddTool(s.sdk, &gosdk.Tool{
		Name:        "search",
		Description: "Semantic and full-text hybrid search over an indexed project. Auto-indexes on first use.",
	}, s.handleSearch)

	gosdk.AddTool(s.sdk, &gosdk.Tool{
		Name:        "index",
		Description: "Fully (re)index a project directory into its chunk store.",
	}, s.handleIndex)

	gosdk.AddTool(s.sdk, &gosdk.Tool{
		Name:        "status",
		Description: "Report chunk counts and watcher state for one project, or every live project.",
	}, s.handleStatus)

	gosdk.AddTool(s.sdk, &gosdk.Tool{
		Name:        "watch_start",
		Description: "Start watching a project for file changes, incrementally re-indexing as they occur.",
	}, s.handleWatchStart)

	gosdk.AddTool(s.sdk, &gosdk.Tool{
		Name:        "watch_stop",
		Description: "Stop watching one project, or every currently watched project.",
	}, s.handleWatchStop)

	s.logger.Debug("mcp_tools_registered", "count", 5)
}

func (s *Server) handleSearch(ctx context.Context, _ *gosdk.CallToolRequest, in searchToolInput) (*gosdk.CallToolResult, toolOutput, error) {
	hybrid := true
	if in.Hybrid != nil {
		hybrid = *in.Hybrid
	}
	envelope := s.dispatcher.Search(ctx, in.Query, in.Path, in.Limit, hybrid)
	return textResult(envelope), toolOutput{}, nil
}

func (s *Server) handleIndex(ctx context.Context, _ *gosdk.CallToolRequest, in indexToolInput) (*gosdk.CallToolResult, toolOutput, error) {
	envelope := s.dispatcher.Index(ctx, in.Path)
	return textResult(envelope), toolOutput{}, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *gosdk.CallToolRequest, in statusToolInput) (*gosdk.CallToolResult, toolOutput, error) {
	envelope := s.dispatcher.Status(ctx, in.Path)
	return textResult(envelope), toolOutput{}, nil
}

func (s *Server) handleWatchStart(ctx context.Context, _ *gosdk.CallToolRequest, in watchStartToolInput) (*gosdk.CallToolResult, toolOutput, error) {
	envelope := s.dispatcher.WatchStart(ctx, in.Path)
	return textResult(envelope), toolOutput{}, nil
}

func (s *Server) handleWatchStop(_ context.Context, _ *gosdk.CallToolRequest, in watchStopToolInput) (*gosdk.CallToolResult, toolOutput, error) {
	envelope := s.dispatcher.WatchStop(in.Path)
	return textResult(envelope), toolOutput{}, nil
}

// ServeStdio runs the server over line-framed JSON on stdio until ctx is
// canceled or the transport closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("mcp_serve_stdio")
	err := s.sdk.Run(ctx, &gosdk.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("mcp_stdio_stopped", "error", err)
		return err
	}
	s.logger.Info("mcp_stdio_stopped_gracefully")
	return nil
}

// ServeStreamableHTTP runs the server over streamable HTTP at addr
// (host:port). Loopback binding is the default; anything else is the
// caller's explicit choice and should sit behind a reverse proxy.
func (s *Server) ServeStreamableHTTP(ctx context.Context, addr string) error {
	handler := gosdk.NewStreamableHTTPHandler(func(*http.Request) *gosdk.Server {
		return s.sdk
	}, nil)

	httpServer := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mcp_serve_streamable_http", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return httpServer.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("streamable http server: %w", err)
		}
		return nil
	}
}

// Serve dispatches to the requested transport by name.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	switch transport {
	case "stdio", "":
		return s.ServeStdio(ctx)
	case "streamable-http":
		return s.ServeStreamableHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, streamable-http)", transport)
	}
}
