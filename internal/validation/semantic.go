package validation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/agentboard/pkg/schema"
)

// validateSemantic enforces the universal field rules the structural schema
// deliberately leaves open: agent id membership, integer progress in
// [0,100], fully-qualified timestamp instants, positive issue numbers, and
// graph snapshot referential integrity. Fields missing or mistyped are
// skipped here; the structural pass has already reported them.
func validateSemantic(et schema.EventType, obj map[string]any, result *schema.ValidationResult) {
	checkTimestamp("timestamp", obj["timestamp"], result)

	switch et {
	case schema.EventTaskDiscovered:
		if tasks, ok := obj["tasks"].([]any); ok {
			for i, t := range tasks {
				task, ok := t.(map[string]any)
				if !ok {
					continue
				}
				checkIssueNumber(fmt.Sprintf("tasks.%d.issueNumber", i), task["issueNumber"], result)
			}
		}

	case schema.EventCoordinatorAnalyzing, schema.EventCoordinatorDecomposing, schema.EventStateTransition:
		checkIssueNumber("issueNumber", obj["issueNumber"], result)

	case schema.EventCoordinatorAssigning:
		checkIssueNumber("issueNumber", obj["issueNumber"], result)
		if assignments, ok := obj["assignments"].([]any); ok {
			for i, a := range assignments {
				assignment, ok := a.(map[string]any)
				if !ok {
					continue
				}
				checkAgentID(fmt.Sprintf("assignments.%d.agentId", i), assignment["agentId"], result)
			}
		}

	case schema.EventAgentStarted, schema.EventAgentCompleted, schema.EventAgentError:
		checkAgentID("agentId", obj["agentId"], result)
		checkIssueNumber("issueNumber", obj["issueNumber"], result)

	case schema.EventAgentProgress:
		checkAgentID("agentId", obj["agentId"], result)
		checkIssueNumber("issueNumber", obj["issueNumber"], result)
		checkProgress("progress", obj["progress"], result)

	case schema.EventGraphUpdate:
		validateSnapshot(obj, result)
	}
}

// checkAgentID requires membership in the fixed agent id set.
func checkAgentID(field string, val any, result *schema.ValidationResult) {
	s, ok := val.(string)
	if !ok {
		return
	}
	if !schema.KnownAgentIDs[schema.AgentID(s)] {
		result.AddError(field, schema.ErrCodeValidation,
			fmt.Sprintf("unknown agent id %q", s))
	}
}

// checkProgress requires an integer in the inclusive range [0,100].
func checkProgress(field string, val any, result *schema.ValidationResult) {
	num, ok := val.(json.Number)
	if !ok {
		return
	}
	n, err := num.Int64()
	if err != nil {
		result.AddError(field, schema.ErrCodeValidation,
			fmt.Sprintf("progress must be an integer, got %s", num))
		return
	}
	if n < 0 || n > 100 {
		result.AddError(field, schema.ErrCodeValidation,
			fmt.Sprintf("progress must be in [0,100], got %d", n))
	}
}

// checkTimestamp requires a fully-qualified RFC 3339 instant with zone.
// Bare dates and bare times fail.
func checkTimestamp(field string, val any, result *schema.ValidationResult) {
	s, ok := val.(string)
	if !ok {
		return
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		result.AddError(field, schema.ErrCodeValidation,
			fmt.Sprintf("timestamp must be an RFC 3339 instant with zone, got %q", s))
	}
}

// checkIssueNumber requires a positive integer.
func checkIssueNumber(field string, val any, result *schema.ValidationResult) {
	num, ok := val.(json.Number)
	if !ok {
		return
	}
	n, err := num.Int64()
	if err != nil {
		result.AddError(field, schema.ErrCodeValidation,
			fmt.Sprintf("issue number must be an integer, got %s", num))
		return
	}
	if n <= 0 {
		result.AddError(field, schema.ErrCodeValidation,
			fmt.Sprintf("issue number must be positive, got %d", n))
	}
}

var validNodeKinds = map[string]bool{
	string(schema.NodeKindIssue): true,
	string(schema.NodeKindAgent): true,
	string(schema.NodeKindState): true,
}

var validEdgeKinds = map[string]bool{
	string(schema.EdgeKindAssignment): true,
	string(schema.EdgeKindTransition): true,
	string(schema.EdgeKindDependency): true,
}

// validateSnapshot checks graph:update referential integrity: unique node
// ids, known node/edge kinds, and no issue node referencing an agent id
// absent from the snapshot. Dangling references are a validation error,
// never silently dropped.
func validateSnapshot(obj map[string]any, result *schema.ValidationResult) {
	nodes, _ := obj["nodes"].([]any)
	edges, _ := obj["edges"].([]any)

	seen := make(map[string]bool, len(nodes))
	agentIDs := make(map[string]bool)

	for i, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := node["id"].(string); ok {
			if seen[id] {
				result.AddError(fmt.Sprintf("nodes.%d.id", i), schema.ErrCodeValidation,
					fmt.Sprintf("duplicate node id %q", id))
			}
			seen[id] = true
		}
		kind, _ := node["kind"].(string)
		if kind != "" && !validNodeKinds[kind] {
			result.AddError(fmt.Sprintf("nodes.%d.kind", i), schema.ErrCodeValidation,
				fmt.Sprintf("unknown node kind %q", kind))
		}
		if kind == string(schema.NodeKindAgent) {
			if agent, ok := node["agent"].(map[string]any); ok {
				if aid, ok := agent["agentId"].(string); ok {
					agentIDs[aid] = true
				}
			}
		}
	}

	for i, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		issue, ok := node["issue"].(map[string]any)
		if !ok {
			continue
		}
		assigned, ok := issue["assignedAgents"].([]any)
		if !ok {
			continue
		}
		for j, a := range assigned {
			aid, ok := a.(string)
			if !ok {
				continue
			}
			if !agentIDs[aid] {
				result.AddError(
					fmt.Sprintf("nodes.%d.issue.assignedAgents.%d", i, j),
					schema.ErrCodeValidation,
					fmt.Sprintf("assigned agent %q has no agent node in the snapshot", aid))
			}
		}
	}

	for i, e := range edges {
		edge, ok := e.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := edge["kind"].(string)
		if kind != "" && !validEdgeKinds[kind] {
			result.AddError(fmt.Sprintf("edges.%d.kind", i), schema.ErrCodeValidation,
				fmt.Sprintf("unknown edge kind %q", kind))
		}
	}
}
