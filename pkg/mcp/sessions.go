package mcp

import (
	"sync"

	"github.com/rendis/agentboard/pkg/schema"
)

// SessionRegistry maps pipeline agent IDs to MCP session IDs. Populated
// when an agent submits an event carrying its agentId, so later warnings
// about that agent can be pushed to the session that reported for it.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[schema.AgentID]string
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[schema.AgentID]string)}
}

// Register associates an agent ID with a session ID.
// If the agent already has a session, it is overwritten (reconnect).
func (r *SessionRegistry) Register(agentID string, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[schema.AgentID(agentID)] = sessionID
}

// SessionFor returns the session ID for the given agent, if connected.
func (r *SessionRegistry) SessionFor(agentID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[schema.AgentID(agentID)]
	return sid, ok
}

// Remove deletes all agent mappings for the given session ID.
// Called when a session disconnects or expires.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for aid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, aid)
		}
	}
}
