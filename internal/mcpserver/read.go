package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/memgraph/internal/embedding"
)

// registerReadTools wires retrieval, summaries, graph walks, and clearing.
func (s *Server) registerReadTools() {
	s.mcp.AddTool(mcp.NewTool("retrieve_context",
		mcp.WithDescription("Retrieve the most relevant memories for a session, ranked by importance, recency, and similarity to the query."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("query", mcp.Description("Free-text query for semantic ranking.")),
		mcp.WithNumber("limit", mcp.Description("Maximum nodes to return.")),
	), s.handleRetrieveContext)

	s.mcp.AddTool(mcp.NewTool("get_session_summary",
		mcp.WithDescription("Summarize a session: node and edge counts plus the most recent memories."),
		mcp.WithString("session_id", mcp.Required()),
	), s.handleSessionSummary)

	s.mcp.AddTool(mcp.NewTool("find_related",
		mcp.WithDescription("Walk one hop from a memory node, strongest edges first."),
		mcp.WithString("node_id", mcp.Required()),
		mcp.WithString("relation", mcp.Description("Restrict to a single relation.")),
		mcp.WithNumber("limit", mcp.Description("Maximum neighbours to return.")),
	), s.handleFindRelated)

	s.mcp.AddTool(mcp.NewTool("clear_session",
		mcp.WithDescription("Delete all memories of a session."),
		mcp.WithString("session_id", mcp.Required()),
	), s.handleClearSession)
}

func (s *Server) handleRetrieveContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}

	var query embedding.Vector
	if text := request.GetString("query", ""); text != "" && s.provider != nil {
		vec, err := s.provider.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("query embedding failed", "error", err)
		} else {
			query = vec
		}
	}

	nodes, err := s.engine.RetrieveContext(ctx, sessionID, query, request.GetInt("limit", 0))
	if err != nil {
		return fail(err)
	}
	return result(map[string]any{"nodes": nodes})
}

func (s *Server) handleSessionSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}

	summary, err := s.engine.SessionSummary(ctx, sessionID)
	if err != nil {
		return fail(err)
	}
	return result(summary)
}

func (s *Server) handleFindRelated(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := request.RequireString("node_id")
	if err != nil {
		return fail(err)
	}

	related, err := s.engine.FindRelated(ctx, nodeID,
		request.GetString("relation", ""), request.GetInt("limit", 0))
	if err != nil {
		return fail(err)
	}
	return result(map[string]any{"related": related})
}

func (s *Server) handleClearSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}

	res, err := s.recorder.ClearSession(ctx, sessionID)
	if err != nil {
		return fail(err)
	}
	return result(res)
}
