package streaming

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/agentboard/internal/graph"
	"github.com/rendis/agentboard/pkg/schema"
)

const defaultChannelBuffer = 64

// subscriber holds a channel, its filter, and the filter's compiled
// expression (nil when the filter has none).
type subscriber struct {
	ch      chan Update
	filter  Filter
	program *vm.Program
}

// MemoryHub is an in-memory UpdateHub implementation using channels.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs: make(map[uint64]*subscriber),
	}
}

// Publish sends an update to all matching subscribers.
// Non-blocking: if a subscriber's channel is full the update is dropped.
func (h *MemoryHub) Publish(ctx context.Context, update Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := buildEnv(update)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !matchFilter(sub.filter, update) {
			continue
		}
		if sub.program != nil {
			out, err := expr.Run(sub.program, env)
			if err != nil {
				continue
			}
			if pass, ok := out.(bool); !ok || !pass {
				continue
			}
		}
		select {
		case sub.ch <- update:
		default:
			// backpressure: drop update for slow subscriber
		}
	}
	return nil
}

// Subscribe creates a new subscription. A non-empty filter expression is
// compiled here; a bad expression fails the subscription with a
// validation error.
func (h *MemoryHub) Subscribe(ctx context.Context, filter Filter) (<-chan Update, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var program *vm.Program
	if filter.Expression != "" {
		var err error
		program, err = expr.Compile(filter.Expression, expr.Env(FilterEnv{}), expr.AsBool())
		if err != nil {
			return nil, nil, schema.NewError(schema.ErrCodeValidation,
				"invalid subscription filter expression").WithCause(err)
		}
	}

	id := h.seq.Add(1)
	ch := make(chan Update, defaultChannelBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, filter: filter, program: program}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}

	return ch, cancel, nil
}

// matchFilter applies the declarative filter criteria.
func matchFilter(f Filter, u Update) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == u.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Severity == graph.SeverityWarning {
		for _, n := range u.Notifications {
			if n.Severity == graph.SeverityWarning {
				return true
			}
		}
		return false
	}
	return true
}

// buildEnv flattens an update into the expression environment.
func buildEnv(u Update) FilterEnv {
	env := FilterEnv{
		EventType: string(u.EventType),
		Sequence:  u.Sequence,
	}
	for _, n := range u.Notifications {
		env.Kinds = append(env.Kinds, n.Kind)
		env.Severities = append(env.Severities, string(n.Severity))
		if n.AgentID != "" {
			env.AgentIDs = append(env.AgentIDs, string(n.AgentID))
		}
		if n.IssueNumber != 0 {
			env.IssueNumbers = append(env.IssueNumbers, n.IssueNumber)
		}
	}
	return env
}
