package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/agentboard/pkg/schema"
)

func newValidator(t *testing.T) *EventValidator {
	t.Helper()
	v, err := NewEventValidator()
	require.NoError(t, err)
	return v
}

func fieldsOf(result *schema.ValidationResult) []string {
	fields := make([]string, 0, len(result.Errors))
	for _, issue := range result.Errors {
		fields = append(fields, issue.Field)
	}
	return fields
}

func TestValidateDiscriminator(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{"missing eventType", `{"timestamp":"2026-08-28T10:00:00Z"}`, "eventType"},
		{"non-string eventType", `{"eventType":42}`, "eventType"},
		{"unknown eventType", `{"eventType":"agent:exploded"}`, "eventType"},
		{"internal pseudo-event rejected", `{"eventType":"agent:idle-reset","agentId":"codegen"}`, "eventType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, result := v.Validate([]byte(tt.payload))
			assert.Nil(t, event)
			require.Len(t, result.Errors, 1)
			assert.Equal(t, tt.field, result.Errors[0].Field)
		})
	}
}

func TestValidateMalformedPayload(t *testing.T) {
	v := newValidator(t)

	for _, payload := range []string{``, `not json`, `[1,2,3]`, `"string"`, `null`} {
		event, result := v.Validate([]byte(payload))
		assert.Nil(t, event, "payload %q", payload)
		assert.False(t, result.Valid(), "payload %q", payload)
	}
}

func TestValidateProgressRange(t *testing.T) {
	v := newValidator(t)

	payload := func(progress string) []byte {
		return fmt.Appendf(nil, `{
			"eventType": "progress",
			"timestamp": "2026-08-28T10:00:00Z",
			"agentId": "codegen",
			"issueNumber": 100,
			"progress": %s
		}`, progress)
	}

	for _, p := range []string{"0", "1", "45", "99", "100"} {
		event, result := v.Validate(payload(p))
		require.True(t, result.Valid(), "progress %s: %v", p, result.Errors)
		require.NotNil(t, event)
		assert.Equal(t, schema.EventAgentProgress, event.EventType())
	}

	for _, p := range []string{"-1", "101", "45.5", "1000", `"45"`} {
		event, result := v.Validate(payload(p))
		assert.Nil(t, event, "progress %s", p)
		require.False(t, result.Valid(), "progress %s", p)
		assert.Contains(t, fieldsOf(result), "progress", "progress %s", p)
	}
}

func TestValidateTimestamps(t *testing.T) {
	v := newValidator(t)

	payload := func(ts string) []byte {
		return fmt.Appendf(nil, `{
			"eventType": "started",
			"timestamp": %s,
			"agentId": "review",
			"issueNumber": 7
		}`, ts)
	}

	valid := []string{
		`"2026-08-28T10:00:00Z"`,
		`"2026-08-28T10:00:00+09:00"`,
		`"2026-08-28T10:00:00.123Z"`,
	}
	for _, ts := range valid {
		_, result := v.Validate(payload(ts))
		assert.True(t, result.Valid(), "timestamp %s: %v", ts, result.Errors)
	}

	invalid := []string{
		`"2026-08-28"`,          // bare date
		`"10:00:00"`,            // bare time
		`"2026-08-28T10:00:00"`, // no zone
		`""`,
		`1724836800`, // non-string
	}
	for _, ts := range invalid {
		event, result := v.Validate(payload(ts))
		assert.Nil(t, event, "timestamp %s", ts)
		require.False(t, result.Valid(), "timestamp %s", ts)
		assert.Contains(t, fieldsOf(result), "timestamp", "timestamp %s", ts)
	}
}

func TestValidateAgentID(t *testing.T) {
	v := newValidator(t)

	payload := func(agent string) []byte {
		return fmt.Appendf(nil, `{
			"eventType": "started",
			"timestamp": "2026-08-28T10:00:00Z",
			"agentId": %q,
			"issueNumber": 12
		}`, agent)
	}

	for _, id := range []string{"coordinator", "codegen", "review", "pr", "deployment", "test", "issue"} {
		_, result := v.Validate(payload(id))
		assert.True(t, result.Valid(), "agent %s: %v", id, result.Errors)
	}

	for _, id := range []string{"", "intern", "CODEGEN", "codegen "} {
		event, result := v.Validate(payload(id))
		assert.Nil(t, event, "agent %q", id)
		assert.Contains(t, fieldsOf(result), "agentId", "agent %q", id)
	}
}

func TestValidateIssueNumber(t *testing.T) {
	v := newValidator(t)

	payload := func(n string) []byte {
		return fmt.Appendf(nil, `{
			"eventType": "state:transition",
			"timestamp": "2026-08-28T10:00:00Z",
			"issueNumber": %s,
			"fromState": "pending",
			"toState": "analyzing"
		}`, n)
	}

	for _, n := range []string{"1", "100", "99999"} {
		_, result := v.Validate(payload(n))
		assert.True(t, result.Valid(), "issueNumber %s: %v", n, result.Errors)
	}

	for _, n := range []string{"0", "-5", "3.5"} {
		event, result := v.Validate(payload(n))
		assert.Nil(t, event, "issueNumber %s", n)
		assert.Contains(t, fieldsOf(result), "issueNumber", "issueNumber %s", n)
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := newValidator(t)

	// Three independent violations in one payload.
	event, result := v.Validate([]byte(`{
		"eventType": "progress",
		"timestamp": "2026-08-28",
		"agentId": "stranger",
		"issueNumber": -1,
		"progress": 150
	}`))
	assert.Nil(t, event)

	fields := fieldsOf(result)
	assert.Contains(t, fields, "timestamp")
	assert.Contains(t, fields, "agentId")
	assert.Contains(t, fields, "issueNumber")
	assert.Contains(t, fields, "progress")
}

func TestValidateExtraFieldsIgnored(t *testing.T) {
	v := newValidator(t)

	event, result := v.Validate([]byte(`{
		"eventType": "completed",
		"timestamp": "2026-08-28T10:00:00Z",
		"agentId": "test",
		"issueNumber": 42,
		"result": {"success": true, "artifacts": ["report.md"]},
		"futureField": {"nested": true},
		"anotherExtra": 99
	}`))
	require.True(t, result.Valid(), "%v", result.Errors)
	require.NotNil(t, event)

	completed, ok := event.(*schema.AgentCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, schema.AgentTest, completed.AgentID)
	assert.Equal(t, 42, completed.IssueNumber)
	assert.True(t, completed.Result.Success)
}

func TestValidateRequiredFields(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"started missing agentId", `{"eventType":"started","timestamp":"2026-08-28T10:00:00Z","issueNumber":1}`},
		{"completed missing result", `{"eventType":"completed","timestamp":"2026-08-28T10:00:00Z","agentId":"pr","issueNumber":1}`},
		{"error missing error object", `{"eventType":"error","timestamp":"2026-08-28T10:00:00Z","agentId":"pr","issueNumber":1}`},
		{"task:discovered missing tasks", `{"eventType":"task:discovered","timestamp":"2026-08-28T10:00:00Z"}`},
		{"transition missing toState", `{"eventType":"state:transition","timestamp":"2026-08-28T10:00:00Z","issueNumber":1,"fromState":"pending"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, result := v.Validate([]byte(tt.payload))
			assert.Nil(t, event)
			assert.False(t, result.Valid())
		})
	}
}

func TestValidateTaskDiscovered(t *testing.T) {
	v := newValidator(t)

	event, result := v.Validate([]byte(`{
		"eventType": "task:discovered",
		"timestamp": "2026-08-28T10:00:00Z",
		"tasks": [
			{"issueNumber": 100, "title": "Fix login", "priority": "P1-High", "labels": ["bug"]},
			{"issueNumber": 101, "title": "Add docs", "priority": "P2-Medium"}
		]
	}`))
	require.True(t, result.Valid(), "%v", result.Errors)

	discovered, ok := event.(*schema.TaskDiscoveredEvent)
	require.True(t, ok)
	require.Len(t, discovered.Tasks, 2)
	assert.Equal(t, 100, discovered.Tasks[0].IssueNumber)
	assert.Equal(t, "P2-Medium", discovered.Tasks[1].Priority)

	// Per-task issue numbers are checked individually.
	_, result = v.Validate([]byte(`{
		"eventType": "task:discovered",
		"timestamp": "2026-08-28T10:00:00Z",
		"tasks": [
			{"issueNumber": 100, "title": "ok", "priority": "P1"},
			{"issueNumber": 0, "title": "bad", "priority": "P1"}
		]
	}`))
	require.False(t, result.Valid())
	assert.Contains(t, fieldsOf(result), "tasks.1.issueNumber")
}

func TestValidateGraphUpdateSnapshot(t *testing.T) {
	v := newValidator(t)

	// Dangling assignedAgents reference is an error, not silently dropped.
	event, result := v.Validate([]byte(`{
		"eventType": "graph:update",
		"timestamp": "2026-08-28T10:00:00Z",
		"nodes": [
			{"id": "issue-1", "kind": "issue", "issue": {"number": 1, "title": "t", "state": "pending", "priority": "P1", "assignedAgents": ["codegen"]}}
		],
		"edges": []
	}`))
	assert.Nil(t, event)
	require.False(t, result.Valid())
	assert.Contains(t, fieldsOf(result), "nodes.0.issue.assignedAgents.0")

	// Same snapshot with the agent node present is valid.
	event, result = v.Validate([]byte(`{
		"eventType": "graph:update",
		"timestamp": "2026-08-28T10:00:00Z",
		"nodes": [
			{"id": "issue-1", "kind": "issue", "issue": {"number": 1, "title": "t", "state": "pending", "priority": "P1", "assignedAgents": ["codegen"]}},
			{"id": "agent-codegen", "kind": "agent", "agent": {"agentId": "codegen", "name": "CodeGen", "status": "idle", "progress": 0}}
		],
		"edges": [
			{"source": "issue-1", "target": "agent-codegen", "kind": "assignment"}
		]
	}`))
	require.True(t, result.Valid(), "%v", result.Errors)
	snapshot, ok := event.(*schema.GraphUpdateEvent)
	require.True(t, ok)
	assert.Len(t, snapshot.Nodes, 2)
	assert.Len(t, snapshot.Edges, 1)
}

func TestValidateGraphUpdateDuplicateNodeIDs(t *testing.T) {
	v := newValidator(t)

	_, result := v.Validate([]byte(`{
		"eventType": "graph:update",
		"timestamp": "2026-08-28T10:00:00Z",
		"nodes": [
			{"id": "issue-1", "kind": "issue"},
			{"id": "issue-1", "kind": "issue"}
		],
		"edges": []
	}`))
	require.False(t, result.Valid())
	assert.Contains(t, fieldsOf(result), "nodes.1.id")
}
