package graph

import (
	"fmt"
	"time"

	"github.com/rendis/agentboard/pkg/schema"
)

// IdleResetDelay is how long a completed agent stays in `completed` before
// the scheduled transition back to idle.
const IdleResetDelay = 3 * time.Second

// AnimationWindow is how long state-transition edges stay animated.
const AnimationWindow = 1500 * time.Millisecond

// AnimationResetEvent is the internal pseudo-event that un-animates the
// edges touching an issue once the animation window elapses.
type AnimationResetEvent struct {
	schema.EventMeta
	IssueNumber int `json:"issueNumber"`
}

// EventType implements schema.Event.
func (AnimationResetEvent) EventType() schema.EventType { return "graph:animation-reset" }

// Effects are the timer directives one Apply call asks its owner to run.
// The reducer itself never touches the wall clock.
type Effects struct {
	ScheduleIdleReset      []schema.AgentID
	CancelIdleReset        []schema.AgentID
	CancelAllIdleResets    bool
	ScheduleAnimationReset []int
}

// displayNames maps agent ids to their UI display names.
var displayNames = map[schema.AgentID]string{
	schema.AgentCoordinator: "Coordinator",
	schema.AgentCodeGen:     "CodeGen",
	schema.AgentReview:      "Review",
	schema.AgentPR:          "PR",
	schema.AgentDeployment:  "Deployment",
	schema.AgentTest:        "Test",
	schema.AgentIssue:       "Issue",
}

// Reducer applies validated events to the graph state. Apply is a pure
// function over its inputs: the given state is never mutated, events are
// only read, and every side effect is returned as a notification or a
// timer directive. Semantically stale input degrades to a no-op plus a
// warning notification; nothing here ever panics on a validated event.
type Reducer struct{}

// NewReducer creates a Reducer.
func NewReducer() *Reducer {
	return &Reducer{}
}

// Apply reduces one event into a new graph state. The dispatch is an
// exhaustive match over the closed event set; an event kind that reaches
// the default arm is a programming error surfaced as a warning, never a
// fault.
func (r *Reducer) Apply(state schema.GraphState, event schema.Event) (schema.GraphState, []Notification, Effects) {
	next := state.Clone()

	switch e := event.(type) {
	case *schema.TaskDiscoveredEvent:
		notes := r.applyTaskDiscovered(&next, e)
		return next, notes, Effects{}
	case *schema.CoordinatorAnalyzingEvent:
		notes := r.applyCoordinatorStage(&next, e, schema.StageAnalysis, e.IssueNumber, func(issue *schema.IssueData) {
			a := e.Analysis
			issue.Analysis = &a
		})
		return next, notes, Effects{}
	case *schema.CoordinatorDecomposingEvent:
		notes := r.applyCoordinatorStage(&next, e, schema.StageDecomposition, e.IssueNumber, func(issue *schema.IssueData) {
			issue.Subtasks = append([]schema.Subtask(nil), e.Subtasks...)
		})
		return next, notes, Effects{}
	case *schema.CoordinatorAssigningEvent:
		notes := r.applyAssigning(&next, e)
		return next, notes, Effects{}
	case *schema.AgentStartedEvent:
		return r.applyStarted(next, e)
	case *schema.AgentProgressEvent:
		notes := r.applyProgress(&next, e)
		return next, notes, Effects{}
	case *schema.AgentCompletedEvent:
		return r.applyCompleted(next, e)
	case *schema.AgentErrorEvent:
		notes := r.applyError(&next, e)
		return next, notes, Effects{CancelIdleReset: []schema.AgentID{e.AgentID}}
	case *schema.StateTransitionEvent:
		return r.applyStateTransition(next, e)
	case *schema.GraphUpdateEvent:
		notes := r.applySnapshot(&next, e)
		return next, notes, Effects{CancelAllIdleResets: true}
	case *schema.AgentIdleResetEvent:
		notes := r.applyIdleReset(&next, e)
		return next, notes, Effects{}
	case *AnimationResetEvent:
		notes := r.applyAnimationReset(&next, e)
		return next, notes, Effects{}
	default:
		warn := notify(event, NoteStaleEvent, SeverityWarning,
			fmt.Sprintf("no reducer for event type %q", event.EventType()))
		return next, []Notification{warn}, Effects{}
	}
}

// applyTaskDiscovered resets the stage machine to discovery and upserts one
// issue node per described task. Identity fields are never overwritten on
// update, only title/priority/URL.
func (r *Reducer) applyTaskDiscovered(state *schema.GraphState, e *schema.TaskDiscoveredEvent) []Notification {
	state.Stage = resetStage()
	notes := []Notification{
		notify(e, NoteStageReset, SeverityInfo, "new discovery cycle started"),
	}

	for _, task := range e.Tasks {
		id := schema.IssueNodeID(task.IssueNumber)
		if node, ok := state.Nodes[id]; ok {
			node.Issue.Title = task.Title
			node.Issue.Priority = task.Priority
			if task.URL != "" {
				node.Issue.URL = task.URL
			}
			n := notify(e, NoteIssueUpdated, SeverityInfo,
				fmt.Sprintf("issue #%d updated: %s", task.IssueNumber, task.Title))
			n.IssueNumber = task.IssueNumber
			notes = append(notes, n)
			continue
		}

		state.Nodes[id] = &schema.Node{
			ID:   id,
			Kind: schema.NodeKindIssue,
			Issue: &schema.IssueData{
				Number:   task.IssueNumber,
				Title:    task.Title,
				State:    "pending",
				Priority: task.Priority,
				URL:      task.URL,
			},
		}
		n := notify(e, NoteIssueDiscovered, SeverityInfo,
			fmt.Sprintf("issue #%d discovered: %s", task.IssueNumber, task.Title))
		n.IssueNumber = task.IssueNumber
		notes = append(notes, n)
	}
	return notes
}

// applyCoordinatorStage advances the stage machine and annotates the
// referenced issue. Coordinator events never create nodes; an unknown
// issue is a warning, not a failure.
func (r *Reducer) applyCoordinatorStage(state *schema.GraphState, e schema.Event, stage schema.WorkflowStage, issueNumber int, annotate func(*schema.IssueData)) []Notification {
	var notes []Notification
	if advanced, moved := advanceStage(state.Stage, stage); moved {
		state.Stage = advanced
		notes = append(notes, notify(e, NoteStageAdvanced, SeverityInfo,
			fmt.Sprintf("pipeline advanced to %s", stage)))
	}

	node, ok := state.Nodes[schema.IssueNodeID(issueNumber)]
	if !ok || node.Issue == nil {
		warn := notify(e, NoteUnknownIssue, SeverityWarning,
			fmt.Sprintf("issue #%d is not in the graph", issueNumber))
		warn.IssueNumber = issueNumber
		return append(notes, warn)
	}

	annotate(node.Issue)
	n := notify(e, NoteIssueAnnotated, SeverityInfo,
		fmt.Sprintf("issue #%d annotated at %s", issueNumber, stage))
	n.IssueNumber = issueNumber
	return append(notes, n)
}

// applyAssigning advances to the assignment stage, records assignments on
// the issue, and materializes the assigned agents plus assignment edges.
// Agent nodes are created on first reference, keeping the assigned-agents
// invariant intact.
func (r *Reducer) applyAssigning(state *schema.GraphState, e *schema.CoordinatorAssigningEvent) []Notification {
	var notes []Notification
	if advanced, moved := advanceStage(state.Stage, schema.StageAssignment); moved {
		state.Stage = advanced
		notes = append(notes, notify(e, NoteStageAdvanced, SeverityInfo,
			fmt.Sprintf("pipeline advanced to %s", schema.StageAssignment)))
	}

	issueID := schema.IssueNodeID(e.IssueNumber)
	issueNode, ok := state.Nodes[issueID]
	if !ok || issueNode.Issue == nil {
		warn := notify(e, NoteUnknownIssue, SeverityWarning,
			fmt.Sprintf("issue #%d is not in the graph", e.IssueNumber))
		warn.IssueNumber = e.IssueNumber
		return append(notes, warn)
	}

	for _, assignment := range e.Assignments {
		upsertAgent(state, assignment.AgentID)
		if !containsAgent(issueNode.Issue.AssignedAgents, assignment.AgentID) {
			issueNode.Issue.AssignedAgents = append(issueNode.Issue.AssignedAgents, assignment.AgentID)
		}
		setEdge(state, schema.Edge{
			Source: issueID,
			Target: schema.AgentNodeID(assignment.AgentID),
			Kind:   schema.EdgeKindAssignment,
		})
	}

	n := notify(e, NoteIssueAnnotated, SeverityInfo,
		fmt.Sprintf("issue #%d assigned to %d agent(s)", e.IssueNumber, len(e.Assignments)))
	n.IssueNumber = e.IssueNumber
	return append(notes, n)
}

// applyStarted looks up or creates the agent node, transitions it to
// running, and advances the pipeline to execution. A started event whose
// issue is unknown is still applied to the agent; the dangling reference
// only produces a warning.
func (r *Reducer) applyStarted(state schema.GraphState, e *schema.AgentStartedEvent) (schema.GraphState, []Notification, Effects) {
	effects := Effects{CancelIdleReset: []schema.AgentID{e.AgentID}}

	agent := upsertAgent(&state, e.AgentID)
	agent.Agent.Status = schema.AgentStatusRunning
	agent.Agent.CurrentIssue = e.IssueNumber
	agent.Agent.Progress = 0
	agent.Agent.Parameters = copyParams(e.Parameters)

	if advanced, moved := advanceStage(state.Stage, schema.StageExecution); moved {
		state.Stage = advanced
	}

	n := notify(e, NoteAgentRunning, SeverityInfo,
		fmt.Sprintf("agent %s started on issue #%d", e.AgentID, e.IssueNumber))
	n.AgentID = e.AgentID
	n.IssueNumber = e.IssueNumber
	notes := []Notification{n}

	issueID := schema.IssueNodeID(e.IssueNumber)
	if issueNode, ok := state.Nodes[issueID]; ok && issueNode.Issue != nil {
		if !containsAgent(issueNode.Issue.AssignedAgents, e.AgentID) {
			issueNode.Issue.AssignedAgents = append(issueNode.Issue.AssignedAgents, e.AgentID)
		}
		setEdge(&state, schema.Edge{
			Source: issueID,
			Target: schema.AgentNodeID(e.AgentID),
			Kind:   schema.EdgeKindAssignment,
		})
	} else {
		warn := notify(e, NoteUnknownIssue, SeverityWarning,
			fmt.Sprintf("agent %s references unknown issue #%d", e.AgentID, e.IssueNumber))
		warn.AgentID = e.AgentID
		warn.IssueNumber = e.IssueNumber
		notes = append(notes, warn)
	}

	return state, notes, effects
}

// applyProgress updates a running agent's progress. Progress for an agent
// that is not running is late or duplicate delivery: a no-op that still
// emits a notification so the caller can log it.
func (r *Reducer) applyProgress(state *schema.GraphState, e *schema.AgentProgressEvent) []Notification {
	agent, ok := state.Nodes[schema.AgentNodeID(e.AgentID)]
	if !ok || agent.Agent == nil || agent.Agent.Status != schema.AgentStatusRunning {
		warn := notify(e, NoteStaleEvent, SeverityWarning,
			fmt.Sprintf("progress for agent %s ignored: agent is not running", e.AgentID))
		warn.AgentID = e.AgentID
		warn.IssueNumber = e.IssueNumber
		return []Notification{warn}
	}

	// The validator guarantees the range; a violation here would break the
	// running-progress invariant, so it degrades to a no-op.
	if e.Progress < 0 || e.Progress > 100 {
		warn := notify(e, NoteStaleEvent, SeverityWarning,
			fmt.Sprintf("progress %d for agent %s out of range, ignored", e.Progress, e.AgentID))
		warn.AgentID = e.AgentID
		return []Notification{warn}
	}

	agent.Agent.Progress = e.Progress
	n := notify(e, NoteAgentProgress, SeverityInfo,
		fmt.Sprintf("agent %s at %d%%", e.AgentID, e.Progress))
	n.AgentID = e.AgentID
	n.IssueNumber = e.IssueNumber
	return []Notification{n}
}

// applyCompleted marks an agent done and schedules the delayed idle reset.
// A duplicate completion is a no-op plus a warning, which also keeps the
// transition idempotent.
func (r *Reducer) applyCompleted(state schema.GraphState, e *schema.AgentCompletedEvent) (schema.GraphState, []Notification, Effects) {
	agent := upsertAgent(&state, e.AgentID)
	if agent.Agent.Status == schema.AgentStatusCompleted {
		warn := notify(e, NoteStaleEvent, SeverityWarning,
			fmt.Sprintf("duplicate completion for agent %s ignored", e.AgentID))
		warn.AgentID = e.AgentID
		return state, []Notification{warn}, Effects{}
	}

	agent.Agent.Status = schema.AgentStatusCompleted
	agent.Agent.Progress = 100
	agent.Agent.CurrentIssue = 0
	state.Stage = completeStage(state.Stage, schema.StageExecution)

	n := notify(e, NoteAgentCompleted, SeverityInfo,
		fmt.Sprintf("agent %s completed issue #%d (success=%t)", e.AgentID, e.IssueNumber, e.Result.Success))
	n.AgentID = e.AgentID
	n.IssueNumber = e.IssueNumber

	return state, []Notification{n}, Effects{ScheduleIdleReset: []schema.AgentID{e.AgentID}}
}

// applyError marks an agent failed. There is no auto-reset from error; a
// subsequent started event is required to recover.
func (r *Reducer) applyError(state *schema.GraphState, e *schema.AgentErrorEvent) []Notification {
	agent := upsertAgent(state, e.AgentID)
	agent.Agent.Status = schema.AgentStatusError
	agent.Agent.CurrentIssue = 0

	n := notify(e, NoteAgentError, SeverityWarning,
		fmt.Sprintf("agent %s failed on issue #%d: %s", e.AgentID, e.IssueNumber, e.Failure.Message))
	n.AgentID = e.AgentID
	n.IssueNumber = e.IssueNumber
	return []Notification{n}
}

// applyStateTransition animates the edges touching the affected issue for
// the animation window. It changes no other node data.
func (r *Reducer) applyStateTransition(state schema.GraphState, e *schema.StateTransitionEvent) (schema.GraphState, []Notification, Effects) {
	issueID := schema.IssueNodeID(e.IssueNumber)
	if _, ok := state.Nodes[issueID]; !ok {
		warn := notify(e, NoteUnknownIssue, SeverityWarning,
			fmt.Sprintf("state transition for unknown issue #%d ignored", e.IssueNumber))
		warn.IssueNumber = e.IssueNumber
		return state, []Notification{warn}, Effects{}
	}

	setEdgeAnimation(&state, issueID, true)

	n := notify(e, NoteEdgesAnimated, SeverityInfo,
		fmt.Sprintf("issue #%d transitioned %s -> %s", e.IssueNumber, e.FromState, e.ToState))
	n.IssueNumber = e.IssueNumber
	return state, []Notification{n}, Effects{ScheduleAnimationReset: []int{e.IssueNumber}}
}

// applySnapshot substitutes the entire node/edge collection with the
// snapshot, discarding all prior incremental state. The stage machine is
// untouched: snapshots carry topology, not pipeline phase.
func (r *Reducer) applySnapshot(state *schema.GraphState, e *schema.GraphUpdateEvent) []Notification {
	state.Nodes = make(map[string]*schema.Node, len(e.Nodes))
	for i := range e.Nodes {
		n := e.Nodes[i].Clone()
		state.Nodes[n.ID] = n
	}
	state.Edges = make(map[string]schema.Edge, len(e.Edges))
	for _, edge := range e.Edges {
		state.Edges[edge.Key()] = edge
	}

	return []Notification{notify(e, NoteSnapshotReplaced, SeverityInfo,
		fmt.Sprintf("graph replaced by snapshot: %d nodes, %d edges", len(e.Nodes), len(e.Edges)))}
}

// applyIdleReset returns a completed agent to idle. If the agent moved on
// in the meantime the reset is stale and ignored.
func (r *Reducer) applyIdleReset(state *schema.GraphState, e *schema.AgentIdleResetEvent) []Notification {
	agent, ok := state.Nodes[schema.AgentNodeID(e.AgentID)]
	if !ok || agent.Agent == nil || agent.Agent.Status != schema.AgentStatusCompleted {
		warn := notify(e, NoteStaleEvent, SeverityWarning,
			fmt.Sprintf("idle reset for agent %s ignored: agent is not in completed state", e.AgentID))
		warn.AgentID = e.AgentID
		return []Notification{warn}
	}

	agent.Agent.Status = schema.AgentStatusIdle
	agent.Agent.Progress = 0
	agent.Agent.CurrentIssue = 0

	n := notify(e, NoteAgentIdle, SeverityInfo,
		fmt.Sprintf("agent %s returned to idle", e.AgentID))
	n.AgentID = e.AgentID
	return []Notification{n}
}

// applyAnimationReset clears the animation flag on the edges touching an
// issue.
func (r *Reducer) applyAnimationReset(state *schema.GraphState, e *AnimationResetEvent) []Notification {
	issueID := schema.IssueNodeID(e.IssueNumber)
	setEdgeAnimation(state, issueID, false)

	n := notify(e, NoteEdgesSettled, SeverityInfo,
		fmt.Sprintf("issue #%d edges settled", e.IssueNumber))
	n.IssueNumber = e.IssueNumber
	return []Notification{n}
}

// --- helpers ---

// upsertAgent returns the agent node, creating an idle one on first
// reference.
func upsertAgent(state *schema.GraphState, id schema.AgentID) *schema.Node {
	nodeID := schema.AgentNodeID(id)
	if node, ok := state.Nodes[nodeID]; ok && node.Agent != nil {
		return node
	}
	name := displayNames[id]
	if name == "" {
		name = string(id)
	}
	node := &schema.Node{
		ID:   nodeID,
		Kind: schema.NodeKindAgent,
		Agent: &schema.AgentData{
			AgentID: id,
			Name:    name,
			Status:  schema.AgentStatusIdle,
		},
	}
	state.Nodes[nodeID] = node
	return node
}

// setEdge stores an edge under its kind-qualified key, so parallel edges
// of different kinds coexist and re-adding is idempotent.
func setEdge(state *schema.GraphState, e schema.Edge) {
	if existing, ok := state.Edges[e.Key()]; ok {
		e.Animated = existing.Animated
	}
	state.Edges[e.Key()] = e
}

// setEdgeAnimation flips the animation flag on every edge touching nodeID.
func setEdgeAnimation(state *schema.GraphState, nodeID string, animated bool) {
	for key, edge := range state.Edges {
		if edge.Source == nodeID || edge.Target == nodeID {
			edge.Animated = animated
			state.Edges[key] = edge
		}
	}
}

func containsAgent(agents []schema.AgentID, id schema.AgentID) bool {
	for _, a := range agents {
		if a == id {
			return true
		}
	}
	return false
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	c := make(map[string]any, len(params))
	for k, v := range params {
		c[k] = v
	}
	return c
}
