package logging

import (
	"context"
	"log/slog"

	"github.com/rendis/agentboard/pkg/schema"
)

type ctxKey int

const (
	agentIDKey ctxKey = iota
	issueNumberKey
	eventTypeKey
)

// WithAgentID returns a context with the agent ID set.
func WithAgentID(ctx context.Context, id schema.AgentID) context.Context {
	return context.WithValue(ctx, agentIDKey, id)
}

// WithIssueNumber returns a context with the issue number set.
func WithIssueNumber(ctx context.Context, number int) context.Context {
	return context.WithValue(ctx, issueNumberKey, number)
}

// WithEventType returns a context with the event type set.
func WithEventType(ctx context.Context, et schema.EventType) context.Context {
	return context.WithValue(ctx, eventTypeKey, et)
}

// AgentID extracts the agent ID from the context, or "" if absent.
func AgentID(ctx context.Context) schema.AgentID {
	v, _ := ctx.Value(agentIDKey).(schema.AgentID)
	return v
}

// IssueNumber extracts the issue number from the context, or 0 if absent.
func IssueNumber(ctx context.Context) int {
	v, _ := ctx.Value(issueNumberKey).(int)
	return v
}

// EventType extracts the event type from the context, or "" if absent.
func EventType(ctx context.Context) schema.EventType {
	v, _ := ctx.Value(eventTypeKey).(schema.EventType)
	return v
}

// WithEvent stamps the correlation fields a typed event carries onto the
// context in one call.
func WithEvent(ctx context.Context, event schema.Event) context.Context {
	ctx = WithEventType(ctx, event.EventType())
	switch e := event.(type) {
	case *schema.AgentStartedEvent:
		ctx = WithAgentID(ctx, e.AgentID)
		ctx = WithIssueNumber(ctx, e.IssueNumber)
	case *schema.AgentProgressEvent:
		ctx = WithAgentID(ctx, e.AgentID)
		ctx = WithIssueNumber(ctx, e.IssueNumber)
	case *schema.AgentCompletedEvent:
		ctx = WithAgentID(ctx, e.AgentID)
		ctx = WithIssueNumber(ctx, e.IssueNumber)
	case *schema.AgentErrorEvent:
		ctx = WithAgentID(ctx, e.AgentID)
		ctx = WithIssueNumber(ctx, e.IssueNumber)
	case *schema.AgentIdleResetEvent:
		ctx = WithAgentID(ctx, e.AgentID)
	case *schema.CoordinatorAnalyzingEvent:
		ctx = WithIssueNumber(ctx, e.IssueNumber)
	case *schema.CoordinatorDecomposingEvent:
		ctx = WithIssueNumber(ctx, e.IssueNumber)
	case *schema.CoordinatorAssigningEvent:
		ctx = WithIssueNumber(ctx, e.IssueNumber)
	case *schema.StateTransitionEvent:
		ctx = WithIssueNumber(ctx, e.IssueNumber)
	}
	return ctx
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation fields from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and the fields appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation field injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := AgentID(ctx); v != "" {
		r.AddAttrs(slog.String("agent_id", string(v)))
	}
	if v := IssueNumber(ctx); v != 0 {
		r.AddAttrs(slog.Int("issue_number", v))
	}
	if v := EventType(ctx); v != "" {
		r.AddAttrs(slog.String("event_type", string(v)))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
