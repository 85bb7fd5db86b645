package gateway

import (
	"log/slog"
	"sync"
	"time"
)

// Session is the in-memory binding between a live connection and an
// authenticated agent. One session per connection; many sessions may
// reference the same agent.
type Session struct {
	ConnectionID    string
	AgentID         string
	AuthenticatedAt time.Time
}

// SessionRegistry maps connections to authenticated agent identities and
// back. All operations are short map writes under a single lock; none
// block.
type SessionRegistry struct {
	mu      sync.RWMutex
	byConn  map[string]*Session
	byAgent map[string]map[string]struct{}
}

// NewSessionRegistry creates an empty session registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byConn:  make(map[string]*Session),
		byAgent: make(map[string]map[string]struct{}),
	}
}

// Authenticate records connID as a viewer of agentID. Re-authenticating
// an already-bound connection replaces the prior mapping without a
// separate logout step; the displaced agent id is returned ("" if the
// connection had no session) so the caller can release resources tied
// to the old agent.
func (r *SessionRegistry) Authenticate(connID, agentID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior := r.removeLocked(connID)

	r.byConn[connID] = &Session{
		ConnectionID:    connID,
		AgentID:         agentID,
		AuthenticatedAt: time.Now(),
	}
	if _, ok := r.byAgent[agentID]; !ok {
		r.byAgent[agentID] = make(map[string]struct{})
	}
	r.byAgent[agentID][connID] = struct{}{}
	slog.Info("Session authenticated", "connection_id", connID, "agent_id", agentID)
	return prior
}

// Deauthenticate removes the session for connID and returns the agent it
// was bound to, or "" if the connection had no session. Idempotent.
func (r *SessionRegistry) Deauthenticate(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connID)
}

// RemoveConnection is the disconnect cleanup path. It behaves exactly
// like Deauthenticate; duplicate disconnect signals are harmless.
func (r *SessionRegistry) RemoveConnection(connID string) string {
	return r.Deauthenticate(connID)
}

func (r *SessionRegistry) removeLocked(connID string) string {
	sess, ok := r.byConn[connID]
	if !ok {
		return ""
	}
	delete(r.byConn, connID)
	if conns, ok := r.byAgent[sess.AgentID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byAgent, sess.AgentID)
		}
	}
	slog.Info("Session removed", "connection_id", connID, "agent_id", sess.AgentID)
	return sess.AgentID
}

// AgentIDFor returns the agent bound to connID, if any.
func (r *SessionRegistry) AgentIDFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	return sess.AgentID, true
}

// ConnectionsFor returns the connection ids currently viewing agentID.
func (r *SessionRegistry) ConnectionsFor(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byAgent[agentID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// ViewerCount returns the number of connections viewing agentID.
func (r *SessionRegistry) ViewerCount(agentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAgent[agentID])
}
