// Package mcpserver exposes the memory graph as MCP tools over stdio. This
// is the surface conversational agents call: the remember_* family, context
// retrieval, summaries, graph walks, and session clearing.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/memgraph/internal/embedding"
	"github.com/flemzord/memgraph/internal/recorder"
	"github.com/flemzord/memgraph/internal/retrieval"
)

// Server wires the recorder and retrieval engine into an MCP tool server.
type Server struct {
	mcp      *server.MCPServer
	recorder *recorder.Recorder
	engine   *retrieval.Engine
	provider embedding.Provider // nil disables semantic queries
	logger   *slog.Logger
}

// New creates the server and registers all tools. provider and logger may
// be nil.
func New(version string, rec *recorder.Recorder, engine *retrieval.Engine, provider embedding.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp: server.NewMCPServer("memgraph", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		recorder: rec,
		engine:   engine,
		provider: provider,
		logger:   logger,
	}
	s.registerRememberTools()
	s.registerLegacyTools()
	s.registerReadTools()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout until EOF or ctx cancel.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("mcp server starting", "transport", "stdio")
	return server.ServeStdio(s.mcp, server.WithStdioContextFunc(
		func(context.Context) context.Context { return ctx },
	))
}

// result marshals v as the tool's JSON text content.
func result(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// fail reports a domain error to the caller without failing the protocol
// call itself.
func fail(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

// optionalFloat returns a pointer to the named argument when present.
func optionalFloat(request mcp.CallToolRequest, key string) *float64 {
	args := request.GetArguments()
	raw, ok := args[key]
	if !ok {
		return nil
	}
	f, ok := raw.(float64)
	if !ok {
		return nil
	}
	return &f
}

// optionalTime parses an RFC 3339 argument when present. A value that is
// present but malformed is an error, not an absent value.
func optionalTime(request mcp.CallToolRequest, key string) (*time.Time, error) {
	raw := request.GetString(key, "")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339: %w", key, err)
	}
	return &t, nil
}
