package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/agentboard/pkg/schema"
)

// handleSubmitEvent validates and applies one wire event.
func (s *BoardServer) handleSubmitEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	event := mcp.ParseStringMap(req, "event", nil)
	if event == nil {
		return mcp.NewToolResultError("event is required"), nil
	}

	// Map the reporting agent to its session so warnings about it can be
	// pushed back.
	if agentID, ok := event["agentId"].(string); ok && agentID != "" {
		s.captureSession(ctx, agentID)
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid event: %v", err)), nil
	}

	update, result, err := s.board.SubmitEvent(ctx, raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("event apply failed: %v", err)), nil
	}
	if result != nil {
		// Rejection is a domain outcome the agent should read, not a
		// protocol error.
		return marshalResult(map[string]any{
			"accepted": false,
			"errors":   result.Errors,
			"warnings": result.Warnings,
		})
	}

	return marshalResult(map[string]any{
		"accepted":      true,
		"sequence":      update.Sequence,
		"eventType":     update.EventType,
		"notifications": update.Notifications,
	})
}

// handleGraph returns the graph state, with layout unless opted out.
func (s *BoardServer) handleGraph(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := map[string]any{
		"sequence": s.board.Sequence(),
		"graph":    s.board.CurrentGraph(),
	}

	if req.GetBool("include_layout", true) {
		l := s.board.CurrentLayout()
		out["nodes"] = l.Nodes
		out["bounds"] = map[string]float64{
			"width":  l.Bounds.Width,
			"height": l.Bounds.Height,
		}
	}

	return marshalResult(out)
}

// handleAgents lists the agent nodes sorted by id.
func (s *BoardServer) handleAgents(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := s.board.CurrentGraph()
	agents := make([]*schema.AgentData, 0, len(state.Nodes))
	for _, n := range state.Nodes {
		if n.Kind == schema.NodeKindAgent && n.Agent != nil {
			agents = append(agents, n.Agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })
	return marshalResult(map[string]any{"agents": agents})
}

// handleStatus summarizes the pipeline without the full node payloads.
func (s *BoardServer) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := s.board.CurrentGraph()

	issues := 0
	agentsByStatus := map[string]int{}
	for _, n := range state.Nodes {
		switch n.Kind {
		case schema.NodeKindIssue:
			issues++
		case schema.NodeKindAgent:
			if n.Agent != nil {
				agentsByStatus[string(n.Agent.Status)]++
			}
		}
	}

	stages := make([]map[string]any, 0, len(schema.StageOrder))
	for _, stage := range schema.StageOrder {
		stages = append(stages, map[string]any{
			"name":      stage,
			"current":   stage == state.Stage.Current,
			"completed": state.Stage.Completed[stage],
		})
	}

	return marshalResult(map[string]any{
		"sequence": s.board.Sequence(),
		"stage":    state.Stage.Current,
		"stages":   stages,
		"issues":   issues,
		"agents":   agentsByStatus,
		"edges":    len(state.Edges),
	})
}

// handleQuery evaluates an expression against the serialized graph.
func (s *BoardServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	engineName := req.GetString("engine", "jq")
	eng, ok := s.engines[engineName]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown query engine: %s", engineName)), nil
	}

	data, err := stateAsMap(s.board.CurrentGraph())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to serialize graph: %v", err)), nil
	}

	out, evalErr := eng.Evaluate(ctx, expression, data)
	if evalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", evalErr)), nil
	}

	return marshalResult(map[string]any{
		"engine": eng.Name(),
		"result": out,
	})
}

// --- Internal helpers ---

// captureSession maps the agent ID to its current MCP session for notifications.
func (s *BoardServer) captureSession(ctx context.Context, agentID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(agentID, session.SessionID())
	}
}

// stateAsMap round-trips the graph through JSON into the generic form the
// expression engines consume.
func stateAsMap(state schema.GraphState) (map[string]any, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
