package graph

import (
	"time"

	"github.com/google/uuid"

	"github.com/rendis/agentboard/pkg/schema"
)

// NotificationSeverity distinguishes informational side effects from
// degraded-but-accepted ones.
type NotificationSeverity string

const (
	SeverityInfo    NotificationSeverity = "info"
	SeverityWarning NotificationSeverity = "warning"
)

// Notification kinds emitted by the reducer.
const (
	NoteIssueDiscovered  = "issue:discovered"
	NoteIssueUpdated     = "issue:updated"
	NoteIssueAnnotated   = "issue:annotated"
	NoteStageAdvanced    = "stage:advanced"
	NoteStageReset       = "stage:reset"
	NoteAgentRunning     = "agent:running"
	NoteAgentProgress    = "agent:progress"
	NoteAgentCompleted   = "agent:completed"
	NoteAgentError       = "agent:error"
	NoteAgentIdle        = "agent:idle"
	NoteEdgesAnimated    = "edges:animated"
	NoteEdgesSettled     = "edges:settled"
	NoteSnapshotReplaced = "snapshot:replaced"
	NoteStaleEvent       = "stale:ignored"
	NoteUnknownIssue     = "issue:unknown"
)

// Notification is a side-effect record produced by one Apply call, for
// subscribers and operator-facing logs. Notifications are not graph state.
type Notification struct {
	ID          string               `json:"id"`
	Kind        string               `json:"kind"`
	Severity    NotificationSeverity `json:"severity"`
	Message     string               `json:"message"`
	EventType   schema.EventType     `json:"eventType"`
	AgentID     schema.AgentID       `json:"agentId,omitempty"`
	IssueNumber int                  `json:"issueNumber,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// notify builds a Notification stamped with the triggering event's time.
func notify(event schema.Event, kind string, severity NotificationSeverity, message string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		EventType: event.EventType(),
		Timestamp: event.OccurredAt(),
	}
}
