package streaming

import (
	"context"
	"time"

	"github.com/rendis/agentboard/internal/graph"
	"github.com/rendis/agentboard/pkg/schema"
)

// Update is one board change broadcast after an event is applied. Sequence
// is the position in the apply order, so subscribers can detect gaps and
// request a snapshot.
type Update struct {
	Sequence      uint64               `json:"sequence"`
	EventType     schema.EventType     `json:"eventType"`
	Notifications []graph.Notification `json:"notifications,omitempty"`
	Graph         *schema.GraphState   `json:"graph,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// Filter narrows which updates a subscriber receives. All populated
// criteria must match. Expression is an optional expr-lang predicate
// evaluated against a FilterEnv; a compile error is reported at subscribe
// time, not publish time.
type Filter struct {
	EventTypes []schema.EventType         `json:"eventTypes,omitempty"`
	Severity   graph.NotificationSeverity `json:"severity,omitempty"`
	Expression string                     `json:"expression,omitempty"`
}

// FilterEnv is the environment a Filter expression evaluates against.
type FilterEnv struct {
	EventType    string   `expr:"eventType"`
	Sequence     uint64   `expr:"sequence"`
	Kinds        []string `expr:"kinds"`
	Severities   []string `expr:"severities"`
	AgentIDs     []string `expr:"agentIds"`
	IssueNumbers []int    `expr:"issueNumbers"`
}

// UpdateHub is the pub/sub fan-out for board updates.
type UpdateHub interface {
	Publish(ctx context.Context, update Update) error
	Subscribe(ctx context.Context, filter Filter) (<-chan Update, func(), error)
}
