package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/agentboard/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
// Sequences are allocated inside a write transaction so the stream stays
// gap-free and strictly increasing under concurrency.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// Append persists one applied wire event and returns its sequence. It
// satisfies the engine's EventSink contract.
func (el *EventLog) Append(ctx context.Context, eventType schema.EventType, payload []byte, appliedAt time.Time) (uint64, error) {
	db := el.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Force lock acquisition with a write-intent statement. In WAL mode,
	// BeginTx alone may start a deferred transaction and allow another
	// writer to interleave between the sequence read and the insert.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return 0, fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return 0, fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq uint64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get next sequence: %w", err)
	}

	if appliedAt.IsZero() {
		appliedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (event_type, payload, applied_at, sequence) VALUES (?, ?, ?, ?)`,
		string(eventType), string(payload), appliedAt, seq,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit event: %w", err)
	}
	return seq, nil
}

// Replay returns every persisted payload after the given sequence, in
// apply order. A gap in the sequence means the log was truncated or
// corrupted, and replay refuses to produce a silently wrong graph.
func (el *EventLog) Replay(ctx context.Context, since uint64) ([][]byte, error) {
	events, err := el.store.GetEvents(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	payloads := make([][]byte, 0, len(events))
	for i, e := range events {
		expected := since + uint64(i) + 1
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in event log: expected %d, got %d", expected, e.Sequence)
		}
		payloads = append(payloads, e.Payload)
	}
	return payloads, nil
}

// SaveGraphSnapshot serializes and persists a graph state at a sequence.
func (el *EventLog) SaveGraphSnapshot(ctx context.Context, seq uint64, state schema.GraphState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal graph snapshot: %w", err)
	}
	return el.store.SaveSnapshot(ctx, &Snapshot{Sequence: seq, Graph: raw})
}

// PruneSnapshots drops all but the newest keep snapshots.
func (el *EventLog) PruneSnapshots(ctx context.Context, keep int) error {
	return el.store.PruneSnapshots(ctx, keep)
}

// LoadGraphSnapshot returns the newest persisted graph state and its
// sequence. A NotFound error means no snapshot exists yet.
func (el *EventLog) LoadGraphSnapshot(ctx context.Context) (schema.GraphState, uint64, error) {
	snap, err := el.store.LatestSnapshot(ctx)
	if err != nil {
		return schema.GraphState{}, 0, err
	}
	var state schema.GraphState
	if err := json.Unmarshal(snap.Graph, &state); err != nil {
		return schema.GraphState{}, 0, schema.NewError(schema.ErrCodeStore,
			"corrupt graph snapshot").WithCause(err)
	}
	if state.Nodes == nil {
		state.Nodes = make(map[string]*schema.Node)
	}
	if state.Edges == nil {
		state.Edges = make(map[string]schema.Edge)
	}
	return state, snap.Sequence, nil
}
