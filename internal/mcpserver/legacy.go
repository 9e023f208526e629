package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerLegacyTools wires the pre-graph tool names. They map onto the
// canonical categories but keep their original signatures so existing agent
// prompts continue to work.
func (s *Server) registerLegacyTools() {
	s.mcp.AddTool(mcp.NewTool("remember_objection",
		mcp.WithDescription("Deprecated: store a client objection. Use remember_preference."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
	), s.handleRememberObjection)

	s.mcp.AddTool(mcp.NewTool("remember_promise",
		mcp.WithDescription("Deprecated: store a commitment with a due date. Use remember_task."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
		mcp.WithString("due_at", mcp.Description("RFC 3339 due time. Required; promises need deadlines.")),
	), s.handleRememberPromise)

	s.mcp.AddTool(mcp.NewTool("remember_session_state",
		mcp.WithDescription("Deprecated: store a free-form session note. Use remember_fact."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
		mcp.WithObject("payload", mcp.Description("Optional extra fields.")),
	), s.handleRememberSessionState)
}

func (s *Server) handleRememberObjection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	text, err := request.RequireString("text")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberObjection(ctx, sessionID, text)
	if err != nil {
		return fail(err)
	}
	return result(node)
}

func (s *Server) handleRememberPromise(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	text, err := request.RequireString("text")
	if err != nil {
		return fail(err)
	}

	due, err := optionalTime(request, "due_at")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberPromise(ctx, sessionID, text, due)
	if err != nil {
		return fail(err)
	}
	return result(node)
}

func (s *Server) handleRememberSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	text, err := request.RequireString("text")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberSessionState(ctx, sessionID, text, objectArg(request, "payload"))
	if err != nil {
		return fail(err)
	}
	return result(node)
}
