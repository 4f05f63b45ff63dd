package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/agentboard/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/board.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// AppendEvent inserts an event record. Sequence assignment lives in
// EventLog; this is the raw insert.
func (s *LibSQLStore) AppendEvent(ctx context.Context, record *EventRecord) error {
	if record.AppliedAt.IsZero() {
		record.AppliedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_type, payload, applied_at, sequence) VALUES (?, ?, ?, ?)`,
		string(record.Type), string(record.Payload), record.AppliedAt, record.Sequence,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	record.ID, _ = res.LastInsertId()
	return nil
}

// GetEvents returns events with sequence > since, ordered by sequence ASC.
func (s *LibSQLStore) GetEvents(ctx context.Context, since uint64) ([]*EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, payload, applied_at, sequence FROM events
		 WHERE sequence > ? ORDER BY sequence ASC`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		e := &EventRecord{}
		var eventType, payload string
		if err := rows.Scan(&e.ID, &eventType, &payload, &e.AppliedAt, &e.Sequence); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = schema.EventType(eventType)
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Snapshots ---

func (s *LibSQLStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (sequence, graph, created_at) VALUES (?, ?, ?)`,
		snap.Sequence, string(snap.Graph), snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	snap.ID, _ = res.LastInsertId()
	return nil
}

func (s *LibSQLStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var graph string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sequence, graph, created_at FROM snapshots ORDER BY sequence DESC, id DESC LIMIT 1`,
	).Scan(&snap.ID, &snap.Sequence, &graph, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("snapshot", "latest")
	}
	if err != nil {
		return nil, err
	}
	snap.Graph = []byte(graph)
	return snap, nil
}

// PruneSnapshots deletes all but the newest keep snapshots.
func (s *LibSQLStore) PruneSnapshots(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY sequence DESC, id DESC LIMIT ?
		)`, keep,
	)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.BoardError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s not found: %s", resource, id)
}
