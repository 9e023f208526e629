package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/memgraph/internal/recorder"
)

// registerRememberTools wires the write surface.
func (s *Server) registerRememberTools() {
	s.mcp.AddTool(mcp.NewTool("remember_fact",
		mcp.WithDescription("Store a fact about the client or the conversation."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session identifier.")),
		mcp.WithString("text", mcp.Required(), mcp.Description("The fact to remember.")),
		mcp.WithString("category", mcp.Description("Memory category; defaults to fact.")),
	), s.handleRememberFact)

	s.mcp.AddTool(mcp.NewTool("remember_preference",
		mcp.WithDescription("Store a client preference, optionally tied to an entity."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
		mcp.WithString("entity_type", mcp.Description("Entity kind: property, contact, contract, or task.")),
		mcp.WithString("entity_id", mcp.Description("Entity identifier.")),
	), s.handleRememberPreference)

	s.mcp.AddTool(mcp.NewTool("remember_decision",
		mcp.WithDescription("Store a decision the client made."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
		mcp.WithObject("context", mcp.Description("Optional decision context, e.g. alternatives.")),
	), s.handleRememberDecision)

	s.mcp.AddTool(mcp.NewTool("remember_identity",
		mcp.WithDescription("Store identity data for an entity and make it the session's current one."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("entity_type", mcp.Required()),
		mcp.WithString("entity_id", mcp.Required()),
		mcp.WithObject("identity_data", mcp.Description("Arbitrary identity attributes.")),
	), s.handleRememberIdentity)

	s.mcp.AddTool(mcp.NewTool("remember_event",
		mcp.WithDescription("Store an event involving zero or more entities."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("event_type", mcp.Required()),
		mcp.WithString("description", mcp.Required()),
		mcp.WithArray("entities", mcp.Description("Involved entities as {type, id} objects.")),
		mcp.WithString("timestamp", mcp.Description("RFC 3339 time of the event.")),
	), s.handleRememberEvent)

	s.mcp.AddTool(mcp.NewTool("remember_observation",
		mcp.WithDescription("Store a soft observation with optional confidence."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
		mcp.WithString("category", mcp.Description("Memory category; defaults to observation.")),
		mcp.WithNumber("confidence", mcp.Description("Confidence in [0,1]; scales importance.")),
	), s.handleRememberObservation)

	s.mcp.AddTool(mcp.NewTool("remember_goal",
		mcp.WithDescription("Store a client goal."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
		mcp.WithObject("metadata", mcp.Description("Optional goal metadata.")),
		mcp.WithString("priority", mcp.Description("critical, high, medium, or low; defaults to medium.")),
	), s.handleRememberGoal)

	s.mcp.AddTool(mcp.NewTool("remember_task",
		mcp.WithDescription("Store a task with a due date."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
		mcp.WithString("due_at", mcp.Required(), mcp.Description("RFC 3339 due time.")),
		mcp.WithObject("entity_refs", mcp.Description("Entity references as payload keys, e.g. contact_id.")),
	), s.handleRememberTask)
}

func (s *Server) handleRememberFact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	text, err := request.RequireString("text")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberFact(ctx, sessionID, text, request.GetString("category", ""))
	if err != nil {
		return fail(err)
	}
	return result(node)
}

func (s *Server) handleRememberPreference(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	text, err := request.RequireString("text")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberPreference(ctx, sessionID, text,
		request.GetString("entity_type", ""), request.GetString("entity_id", ""))
	if err != nil {
		return fail(err)
	}
	return result(node)
}

func (s *Server) handleRememberDecision(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	text, err := request.RequireString("text")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberDecision(ctx, sessionID, text, objectArg(request, "context"))
	if err != nil {
		return fail(err)
	}
	return result(node)
}

func (s *Server) handleRememberIdentity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	entityType, err := request.RequireString("entity_type")
	if err != nil {
		return fail(err)
	}
	entityID, err := request.RequireString("entity_id")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberIdentity(ctx, sessionID, entityType, entityID, objectArg(request, "identity_data"))
	if err != nil {
		return fail(err)
	}
	return result(node)
}

func (s *Server) handleRememberEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	eventType, err := request.RequireString("event_type")
	if err != nil {
		return fail(err)
	}
	description, err := request.RequireString("description")
	if err != nil {
		return fail(err)
	}

	at, err := optionalTime(request, "timestamp")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberEvent(ctx, sessionID, eventType, description,
		entitiesArg(request), at)
	if err != nil {
		return fail(err)
	}
	return result(node)
}

func (s *Server) handleRememberObservation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	text, err := request.RequireString("text")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberObservation(ctx, sessionID, text,
		request.GetString("category", ""), optionalFloat(request, "confidence"))
	if err != nil {
		return fail(err)
	}
	return result(node)
}

func (s *Server) handleRememberGoal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	text, err := request.RequireString("text")
	if err != nil {
		return fail(err)
	}

	node, err := s.recorder.RememberGoal(ctx, sessionID, text,
		objectArg(request, "metadata"), request.GetString("priority", ""))
	if err != nil {
		return fail(err)
	}
	return result(node)
}

func (s *Server) handleRememberTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return fail(err)
	}
	text, err := request.RequireString("text")
	if err != nil {
		return fail(err)
	}
	dueRaw, err := request.RequireString("due_at")
	if err != nil {
		return fail(err)
	}
	due, err := time.Parse(time.RFC3339, dueRaw)
	if err != nil {
		return fail(err)
	}

	refs := make(map[string]string)
	for k, v := range objectArg(request, "entity_refs") {
		if s, ok := v.(string); ok {
			refs[k] = s
		}
	}

	node, err := s.recorder.RememberTask(ctx, sessionID, text, due, refs)
	if err != nil {
		return fail(err)
	}
	return result(node)
}

// objectArg returns a map argument, nil when absent or mistyped.
func objectArg(request mcp.CallToolRequest, key string) map[string]any {
	raw, ok := request.GetArguments()[key]
	if !ok {
		return nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return obj
}

// entitiesArg decodes the entities array of {type, id} objects.
func entitiesArg(request mcp.CallToolRequest) []recorder.EventEntity {
	raw, ok := request.GetArguments()["entities"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	var entities []recorder.EventEntity
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := obj["type"].(string)
		id, _ := obj["id"].(string)
		if kind != "" && id != "" {
			entities = append(entities, recorder.EventEntity{Type: kind, ID: id})
		}
	}
	return entities
}
