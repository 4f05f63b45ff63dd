package schema

import "strconv"

// NodeKind classifies a graph node by its role in the pipeline.
type NodeKind string

const (
	NodeKindIssue NodeKind = "issue"
	NodeKindAgent NodeKind = "agent"
	NodeKindState NodeKind = "state"
)

// AgentStatus is the lifecycle state of an agent node.
type AgentStatus string

const (
	AgentStatusIdle      AgentStatus = "idle"
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusError     AgentStatus = "error"
)

// Position is a 2-D node position assigned by the layout engine.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IssueData is the payload of an issue node.
type IssueData struct {
	Number         int            `json:"number"`
	Title          string         `json:"title"`
	State          string         `json:"state"`
	Priority       string         `json:"priority"`
	AssignedAgents []AgentID      `json:"assignedAgents,omitempty"`
	URL            string         `json:"url,omitempty"`
	Analysis       *IssueAnalysis `json:"analysis,omitempty"`
	Subtasks       []Subtask      `json:"subtasks,omitempty"`
}

// AgentData is the payload of an agent node.
type AgentData struct {
	AgentID      AgentID        `json:"agentId"`
	Name         string         `json:"name"`
	Status       AgentStatus    `json:"status"`
	CurrentIssue int            `json:"currentIssue,omitempty"` // 0 = none
	Progress     int            `json:"progress"`
	Parameters   map[string]any `json:"parameters,omitempty"` // opaque, UI display only
}

// StateData is the payload of a workflow-state node.
type StateData struct {
	Label       string `json:"label"`
	IssueCount  int    `json:"issueCount"`
	Description string `json:"description,omitempty"`
}

// Node is a tagged union over the three node variants. Exactly one of
// Issue, Agent, State is non-nil, matching Kind.
type Node struct {
	ID       string     `json:"id"`
	Kind     NodeKind   `json:"kind"`
	Position Position   `json:"position"`
	Issue    *IssueData `json:"issue,omitempty"`
	Agent    *AgentData `json:"agent,omitempty"`
	State    *StateData `json:"state,omitempty"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.Issue != nil {
		issue := *n.Issue
		issue.AssignedAgents = append([]AgentID(nil), n.Issue.AssignedAgents...)
		issue.Subtasks = append([]Subtask(nil), n.Issue.Subtasks...)
		if n.Issue.Analysis != nil {
			a := *n.Issue.Analysis
			issue.Analysis = &a
		}
		c.Issue = &issue
	}
	if n.Agent != nil {
		agent := *n.Agent
		if n.Agent.Parameters != nil {
			params := make(map[string]any, len(n.Agent.Parameters))
			for k, v := range n.Agent.Parameters {
				params[k] = v
			}
			agent.Parameters = params
		}
		c.Agent = &agent
	}
	if n.State != nil {
		state := *n.State
		c.State = &state
	}
	return &c
}

// EdgeKind is the semantic relationship an edge represents.
type EdgeKind string

const (
	EdgeKindAssignment EdgeKind = "assignment"
	EdgeKindTransition EdgeKind = "transition"
	EdgeKindDependency EdgeKind = "dependency"
)

// Edge is a directed relationship between two nodes. Multiple edges between
// the same ordered pair are permitted only if their kinds differ.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Kind     EdgeKind `json:"kind"`
	Animated bool     `json:"animated,omitempty"`
}

// Key returns the identity of the edge within a graph snapshot.
func (e Edge) Key() string {
	return e.Source + "->" + e.Target + "#" + string(e.Kind)
}

// WorkflowStage is one of the five fixed pipeline phases.
type WorkflowStage string

const (
	StageDiscovery     WorkflowStage = "discovery"
	StageAnalysis      WorkflowStage = "analysis"
	StageDecomposition WorkflowStage = "decomposition"
	StageAssignment    WorkflowStage = "assignment"
	StageExecution     WorkflowStage = "execution"
)

// StageOrder lists the pipeline stages in forward order.
var StageOrder = []WorkflowStage{
	StageDiscovery,
	StageAnalysis,
	StageDecomposition,
	StageAssignment,
	StageExecution,
}

// StageState is the forward-moving stage pointer plus completed markers.
// Current is "" when no discovery cycle has started yet.
type StageState struct {
	Current   WorkflowStage          `json:"current,omitempty"`
	Completed map[WorkflowStage]bool `json:"completed,omitempty"`
}

// Clone returns a deep copy of the stage state.
func (s StageState) Clone() StageState {
	c := StageState{Current: s.Current}
	if s.Completed != nil {
		c.Completed = make(map[WorkflowStage]bool, len(s.Completed))
		for k, v := range s.Completed {
			c.Completed[k] = v
		}
	}
	return c
}

// GraphState is the authoritative node/edge collection at a point in time.
// Nodes are stored in a map keyed by stable id so identity survives
// snapshot replacement and reordering.
type GraphState struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges map[string]Edge  `json:"edges"`
	Stage StageState       `json:"stage"`
}

// NewGraphState returns an empty graph state.
func NewGraphState() GraphState {
	return GraphState{
		Nodes: make(map[string]*Node),
		Edges: make(map[string]Edge),
	}
}

// Clone returns a deep copy of the graph state.
func (g GraphState) Clone() GraphState {
	c := GraphState{
		Nodes: make(map[string]*Node, len(g.Nodes)),
		Edges: make(map[string]Edge, len(g.Edges)),
		Stage: g.Stage.Clone(),
	}
	for id, n := range g.Nodes {
		c.Nodes[id] = n.Clone()
	}
	for k, e := range g.Edges {
		c.Edges[k] = e
	}
	return c
}

// IssueNodeID returns the stable node id for an issue number.
func IssueNodeID(number int) string {
	return "issue-" + strconv.Itoa(number)
}

// AgentNodeID returns the stable node id for an agent.
func AgentNodeID(id AgentID) string {
	return "agent-" + string(id)
}

// StateNodeID returns the stable node id for a workflow state label.
func StateNodeID(label string) string {
	return "state-" + label
}
