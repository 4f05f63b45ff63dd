package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rendis/agentboard/internal/graph"
	"github.com/rendis/agentboard/internal/layout"
	"github.com/rendis/agentboard/internal/logging"
	"github.com/rendis/agentboard/internal/streaming"
	"github.com/rendis/agentboard/internal/validation"
	"github.com/rendis/agentboard/pkg/schema"
)

// EventSink persists applied wire events. Internal pseudo-events are
// never persisted.
type EventSink interface {
	Append(ctx context.Context, eventType schema.EventType, payload []byte, appliedAt time.Time) (uint64, error)
}

// Config wires a Board's collaborators. Validator, Hub, and Logger are
// required; Sink and Clock are optional (no persistence, wall clock).
type Config struct {
	Validator validation.Validator
	Hub       streaming.UpdateHub
	Sink      EventSink
	Clock     graph.Clock
	Logger    *slog.Logger
}

// Board is the single-writer core of the visualization engine. Every
// state change, whether an external wire event or an internal timer
// event, funnels through one apply goroutine, so the reducer never sees
// concurrent access and updates are published in a gap-free sequence.
type Board struct {
	validator validation.Validator
	reducer   *graph.Reducer
	hub       streaming.UpdateHub
	sink      EventSink
	scheduler *graph.ResetScheduler
	clock     graph.Clock
	log       *slog.Logger

	applyCh chan applyRequest

	mu    sync.RWMutex
	state schema.GraphState
	seq   uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type applyRequest struct {
	event   schema.Event
	payload []byte
	resp    chan applyResult
}

type applyResult struct {
	update streaming.Update
	err    error
}

// NewBoard builds a Board and starts its apply loop.
func NewBoard(cfg Config) *Board {
	clock := cfg.Clock
	if clock == nil {
		clock = graph.RealClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	b := &Board{
		validator: cfg.Validator,
		reducer:   graph.NewReducer(),
		hub:       cfg.Hub,
		sink:      cfg.Sink,
		clock:     clock,
		log:       log,
		applyCh:   make(chan applyRequest),
		state:     schema.NewGraphState(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	b.scheduler = graph.NewResetScheduler(clock, b.fireIdleReset, b.fireAnimationReset)

	go b.run()
	return b
}

// Close stops the apply loop and cancels all pending timers.
func (b *Board) Close() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
		b.scheduler.Stop()
	})
}

// SubmitEvent validates and applies one wire event. A structurally or
// semantically invalid event is rejected with a non-nil ValidationResult
// and leaves the graph untouched; the error return is reserved for
// infrastructure failures.
func (b *Board) SubmitEvent(ctx context.Context, raw []byte) (*streaming.Update, *schema.ValidationResult, error) {
	event, result := b.validator.Validate(raw)
	if !result.Valid() {
		b.log.WarnContext(ctx, "event rejected",
			slog.Int("errors", len(result.Errors)))
		return nil, result, nil
	}

	update, err := b.apply(ctx, event, raw)
	if err != nil {
		return nil, nil, err
	}
	return update, nil, nil
}

// CurrentGraph returns a deep copy of the graph state.
func (b *Board) CurrentGraph() schema.GraphState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Clone()
}

// CurrentLayout computes node positions for the current graph. The layout
// assigns positions by slice index within each band, so the map contents
// are sorted into a stable order first: an unchanged graph always yields
// identical coordinates.
func (b *Board) CurrentLayout() layout.Layout {
	state := b.CurrentGraph()
	nodes := make([]*schema.Node, 0, len(state.Nodes))
	for _, n := range state.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return layoutLess(nodes[i], nodes[j]) })

	edges := make([]schema.Edge, 0, len(state.Edges))
	for _, e := range state.Edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key() < edges[j].Key() })

	return layout.CalculateLayout(nodes, edges)
}

// layoutLess orders nodes by band (issues, agents, states), then by issue
// number, agent id, or node id within the band.
func layoutLess(a, b *schema.Node) bool {
	if ra, rb := bandRank(a), bandRank(b); ra != rb {
		return ra < rb
	}
	switch {
	case a.Kind == schema.NodeKindIssue && a.Issue != nil && b.Issue != nil:
		return a.Issue.Number < b.Issue.Number
	case a.Kind == schema.NodeKindAgent && a.Agent != nil && b.Agent != nil:
		return a.Agent.AgentID < b.Agent.AgentID
	default:
		return a.ID < b.ID
	}
}

func bandRank(n *schema.Node) int {
	switch n.Kind {
	case schema.NodeKindIssue:
		return 0
	case schema.NodeKindAgent:
		return 1
	default:
		return 2
	}
}

// Sequence returns the number of applied events.
func (b *Board) Sequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

// Subscribe attaches a filtered subscriber to the update stream.
func (b *Board) Subscribe(ctx context.Context, filter streaming.Filter) (<-chan streaming.Update, func(), error) {
	return b.hub.Subscribe(ctx, filter)
}

// RestoreSnapshot seeds the graph from a persisted snapshot. Call before
// Restore so replay continues from the snapshot sequence.
func (b *Board) RestoreSnapshot(state schema.GraphState, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state.Clone()
	b.seq = seq
}

// Restore replays persisted event payloads through validation and the
// reducer without publishing updates or arming timers. Invalid payloads
// are skipped with a warning so one bad log entry cannot wedge startup.
func (b *Board) Restore(ctx context.Context, payloads [][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, raw := range payloads {
		if err := ctx.Err(); err != nil {
			return err
		}
		event, result := b.validator.Validate(raw)
		if !result.Valid() {
			b.log.WarnContext(ctx, "skipping invalid event during restore",
				slog.Int("index", i))
			continue
		}
		next, _, _ := b.reducer.Apply(b.state, event)
		b.state = next
		b.seq++
	}

	b.log.InfoContext(ctx, "graph restored from event log",
		slog.Uint64("sequence", b.seq))
	return nil
}

// apply hands an event to the writer goroutine and waits for the outcome.
func (b *Board) apply(ctx context.Context, event schema.Event, payload []byte) (*streaming.Update, error) {
	req := applyRequest{event: event, payload: payload, resp: make(chan applyResult, 1)}
	select {
	case b.applyCh <- req:
	case <-b.stopCh:
		return nil, schema.NewError(schema.ErrCodeExecution, "board is shut down")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.resp:
		if res.err != nil {
			return nil, res.err
		}
		return &res.update, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the single writer. It owns state mutation, persistence, timer
// dispatch, and publication order.
func (b *Board) run() {
	defer close(b.doneCh)
	ctx := context.Background()

	for {
		select {
		case <-b.stopCh:
			return
		case req := <-b.applyCh:
			req.resp <- b.applyOne(ctx, req)
		}
	}
}

func (b *Board) applyOne(ctx context.Context, req applyRequest) applyResult {
	ctx = logging.WithEvent(ctx, req.event)

	b.mu.RLock()
	current := b.state
	b.mu.RUnlock()

	next, notes, effects := b.reducer.Apply(current, req.event)

	if b.sink != nil && req.payload != nil {
		if _, err := b.sink.Append(ctx, req.event.EventType(), req.payload, b.clock.Now()); err != nil {
			b.log.ErrorContext(ctx, "event persistence failed", slog.Any("error", err))
			return applyResult{err: schema.NewError(schema.ErrCodeStore, "failed to persist event").WithCause(err)}
		}
	}

	b.mu.Lock()
	b.state = next
	b.seq++
	seq := b.seq
	published := next.Clone()
	b.mu.Unlock()

	b.scheduler.Dispatch(effects)

	for _, n := range notes {
		level := slog.LevelInfo
		if n.Severity == graph.SeverityWarning {
			level = slog.LevelWarn
		}
		b.log.LogAttrs(ctx, level, n.Message, slog.String("kind", n.Kind))
	}

	update := streaming.Update{
		Sequence:      seq,
		EventType:     req.event.EventType(),
		Notifications: notes,
		Graph:         &published,
		Timestamp:     b.clock.Now(),
	}
	if err := b.hub.Publish(ctx, update); err != nil {
		b.log.WarnContext(ctx, "update publish failed", slog.Any("error", err))
	}

	return applyResult{update: update}
}

// fireIdleReset routes an expired idle-reset timer back through the apply
// loop as an internal event.
func (b *Board) fireIdleReset(id schema.AgentID) {
	event := &schema.AgentIdleResetEvent{
		EventMeta: schema.EventMeta{Timestamp: b.clock.Now()},
		AgentID:   id,
	}
	if _, err := b.apply(context.Background(), event, nil); err != nil {
		b.log.Warn("idle reset dropped", slog.String("agent_id", string(id)), slog.Any("error", err))
	}
}

// fireAnimationReset routes an expired animation window back through the
// apply loop.
func (b *Board) fireAnimationReset(issue int) {
	event := &graph.AnimationResetEvent{
		EventMeta:   schema.EventMeta{Timestamp: b.clock.Now()},
		IssueNumber: issue,
	}
	if _, err := b.apply(context.Background(), event, nil); err != nil {
		b.log.Warn("animation reset dropped", slog.Int("issue_number", issue), slog.Any("error", err))
	}
}
