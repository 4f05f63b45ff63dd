package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Event log (append-only)
	AppendEvent(ctx context.Context, record *EventRecord) error
	GetEvents(ctx context.Context, since uint64) ([]*EventRecord, error)

	// Graph snapshots
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
	PruneSnapshots(ctx context.Context, keep int) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
