package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/agentboard/pkg/schema"
)

// EventRecord is an immutable entry in the event log. Payload is the raw
// wire JSON exactly as it passed validation; Sequence is the gap-free
// position in the single board-wide stream.
type EventRecord struct {
	ID        int64            `json:"id"`
	Type      schema.EventType `json:"eventType"`
	Payload   json.RawMessage  `json:"payload"`
	AppliedAt time.Time        `json:"appliedAt"`
	Sequence  uint64           `json:"sequence"`
}

// Snapshot is a persisted point-in-time graph state, stored so a restart
// can skip replaying the full event log.
type Snapshot struct {
	ID        int64           `json:"id"`
	Sequence  uint64          `json:"sequence"`
	Graph     json.RawMessage `json:"graph"`
	CreatedAt time.Time       `json:"createdAt"`
}
