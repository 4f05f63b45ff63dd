package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/agentboard/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestAppendAndGetEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, &EventRecord{
			Type:     schema.EventAgentProgress,
			Payload:  []byte(`{"progress":50}`),
			Sequence: uint64(i),
		}))
	}

	events, err := s.GetEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, schema.EventAgentProgress, events[0].Type)
	assert.JSONEq(t, `{"progress":50}`, string(events[0].Payload))

	events, err = s.GetEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Sequence)
}

func TestAppendEventStampsAppliedAt(t *testing.T) {
	s := newTestStore(t)
	rec := &EventRecord{Type: schema.EventTaskDiscovered, Payload: []byte(`{}`), Sequence: 1}
	require.NoError(t, s.AppendEvent(context.Background(), rec))
	assert.False(t, rec.AppliedAt.IsZero())
	assert.NotZero(t, rec.ID)
}

func TestSnapshotLatestAndPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.SaveSnapshot(ctx, &Snapshot{
			Sequence:  uint64(i * 10),
			Graph:     []byte(`{"nodes":{},"edges":{},"stage":{}}`),
			CreatedAt: time.Date(2026, 8, 28, 10, i, 0, 0, time.UTC),
		}))
	}

	latest, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), latest.Sequence)

	require.NoError(t, s.PruneSnapshots(ctx, 2))
	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count))
	assert.Equal(t, 2, count)

	// Pruning keeps the newest ones.
	latest, err = s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), latest.Sequence)
}

func TestLatestSnapshotEmptyIsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LatestSnapshot(context.Background())
	require.Error(t, err)

	var boardErr *schema.BoardError
	require.ErrorAs(t, err, &boardErr)
	assert.Equal(t, schema.ErrCodeNotFound, boardErr.Code)
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}
