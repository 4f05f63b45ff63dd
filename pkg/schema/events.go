package schema

import "time"

// EventType discriminates the closed set of pipeline event kinds.
type EventType string

const (
	EventTaskDiscovered         EventType = "task:discovered"
	EventCoordinatorAnalyzing   EventType = "coordinator:analyzing"
	EventCoordinatorDecomposing EventType = "coordinator:decomposing"
	EventCoordinatorAssigning   EventType = "coordinator:assigning"
	EventAgentStarted           EventType = "started"
	EventAgentProgress          EventType = "progress"
	EventAgentCompleted         EventType = "completed"
	EventAgentError             EventType = "error"
	EventStateTransition        EventType = "state:transition"
	EventGraphUpdate            EventType = "graph:update"

	// EventAgentIdleReset is the internal pseudo-event the reducer schedules
	// after a completion. It never arrives on the wire and is rejected by the
	// validator if it does.
	EventAgentIdleReset EventType = "agent:idle-reset"
)

// AgentID identifies one of the fixed pipeline agents.
type AgentID string

const (
	AgentCoordinator AgentID = "coordinator"
	AgentCodeGen     AgentID = "codegen"
	AgentReview      AgentID = "review"
	AgentPR          AgentID = "pr"
	AgentDeployment  AgentID = "deployment"
	AgentTest        AgentID = "test"
	AgentIssue       AgentID = "issue"
)

// KnownAgentIDs is the closed set of valid agent identifiers.
var KnownAgentIDs = map[AgentID]bool{
	AgentCoordinator: true,
	AgentCodeGen:     true,
	AgentReview:      true,
	AgentPR:          true,
	AgentDeployment:  true,
	AgentTest:        true,
	AgentIssue:       true,
}

// Event is the validated, typed form of a pipeline event. Implementations
// are immutable once produced by the validator; the reducer only reads them.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
}

// EventMeta carries the fields common to every event.
type EventMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns the event timestamp.
func (m EventMeta) OccurredAt() time.Time { return m.Timestamp }

// TaskSummary describes one discovered task/issue.
type TaskSummary struct {
	IssueNumber int      `json:"issueNumber"`
	Title       string   `json:"title"`
	Priority    string   `json:"priority"`
	Labels      []string `json:"labels,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// TaskDiscoveredEvent starts a new discovery cycle with a batch of tasks.
type TaskDiscoveredEvent struct {
	EventMeta
	Tasks []TaskSummary `json:"tasks"`
}

func (TaskDiscoveredEvent) EventType() EventType { return EventTaskDiscovered }

// IssueAnalysis is the coordinator's assessment of an issue.
type IssueAnalysis struct {
	Type          string `json:"type"`
	Priority      string `json:"priority"`
	Complexity    string `json:"complexity"`
	EstimatedTime string `json:"estimatedTime,omitempty"`
}

// CoordinatorAnalyzingEvent advances the pipeline to the analysis stage.
type CoordinatorAnalyzingEvent struct {
	EventMeta
	IssueNumber int           `json:"issueNumber"`
	Analysis    IssueAnalysis `json:"analysis"`
}

func (CoordinatorAnalyzingEvent) EventType() EventType { return EventCoordinatorAnalyzing }

// Subtask is one unit of the coordinator's decomposition.
type Subtask struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Type         string   `json:"type"`
	Dependencies []string `json:"dependencies"`
}

// CoordinatorDecomposingEvent advances the pipeline to the decomposition stage.
type CoordinatorDecomposingEvent struct {
	EventMeta
	IssueNumber int       `json:"issueNumber"`
	Subtasks    []Subtask `json:"subtasks"`
}

func (CoordinatorDecomposingEvent) EventType() EventType { return EventCoordinatorDecomposing }

// Assignment maps a subtask to a specialist agent.
type Assignment struct {
	AgentID AgentID `json:"agentId"`
	TaskID  string  `json:"taskId,omitempty"`
	Reason  string  `json:"reason"`
}

// CoordinatorAssigningEvent advances the pipeline to the assignment stage.
type CoordinatorAssigningEvent struct {
	EventMeta
	IssueNumber int          `json:"issueNumber"`
	Assignments []Assignment `json:"assignments"`
}

func (CoordinatorAssigningEvent) EventType() EventType { return EventCoordinatorAssigning }

// AgentStartedEvent marks an agent picking up an issue.
type AgentStartedEvent struct {
	EventMeta
	AgentID     AgentID        `json:"agentId"`
	IssueNumber int            `json:"issueNumber"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func (AgentStartedEvent) EventType() EventType { return EventAgentStarted }

// AgentProgressEvent updates a running agent's progress percentage.
type AgentProgressEvent struct {
	EventMeta
	AgentID     AgentID `json:"agentId"`
	IssueNumber int     `json:"issueNumber"`
	Progress    int     `json:"progress"`
	Message     string  `json:"message,omitempty"`
}

func (AgentProgressEvent) EventType() EventType { return EventAgentProgress }

// CompletionResult carries the outcome of a finished agent run.
type CompletionResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
}

// AgentCompletedEvent marks an agent finishing its current issue.
type AgentCompletedEvent struct {
	EventMeta
	AgentID     AgentID          `json:"agentId"`
	IssueNumber int              `json:"issueNumber"`
	Result      CompletionResult `json:"result"`
}

func (AgentCompletedEvent) EventType() EventType { return EventAgentCompleted }

// AgentFailure describes an agent error.
type AgentFailure struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	Severity        string `json:"severity"`
	Recoverable     bool   `json:"recoverable"`
	SuggestedAction string `json:"suggestedAction,omitempty"`
}

// AgentErrorEvent marks an agent run failing.
type AgentErrorEvent struct {
	EventMeta
	AgentID     AgentID      `json:"agentId"`
	IssueNumber int          `json:"issueNumber"`
	Failure     AgentFailure `json:"error"`
}

func (AgentErrorEvent) EventType() EventType { return EventAgentError }

// StateTransitionEvent animates the edges touching an issue for a fixed window.
type StateTransitionEvent struct {
	EventMeta
	IssueNumber int    `json:"issueNumber"`
	FromState   string `json:"fromState"`
	ToState     string `json:"toState"`
}

func (StateTransitionEvent) EventType() EventType { return EventStateTransition }

// GraphUpdateEvent is a full-snapshot replace of the node/edge collection,
// used for resynchronization after a gap in the event stream.
type GraphUpdateEvent struct {
	EventMeta
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func (GraphUpdateEvent) EventType() EventType { return EventGraphUpdate }

// AgentIdleResetEvent is the reducer-originated pseudo-event that returns a
// completed agent to idle after the reset delay.
type AgentIdleResetEvent struct {
	EventMeta
	AgentID AgentID `json:"agentId"`
}

func (AgentIdleResetEvent) EventType() EventType { return EventAgentIdleReset }
