// Package client implements the browser-equivalent side of the relay
// protocol for Go consumers: a reconnecting WebSocket client, the
// connectivity state machine it reports through, and a bounded buffer of
// server-pushed events for inspection and replay.
package client

import (
	"sync"
	"time"
)

// TransportPhase is the primary transport's connectivity phase.
type TransportPhase int

const (
	// PhaseDisconnected is the initial phase and the phase after a
	// deliberate disconnect.
	PhaseDisconnected TransportPhase = iota
	// PhaseConnecting covers the first connection attempt.
	PhaseConnecting
	// PhaseConnected means the transport is up.
	PhaseConnected
	// PhaseReconnecting covers automatic reconnection after a
	// transport-level loss.
	PhaseReconnecting
	// PhaseFailed is terminal: the attempt cap was exceeded.
	PhaseFailed
)

// String returns the phase name.
func (p TransportPhase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TransportState is the primary transport's tracked state. The backoff
// schedule itself belongs to the transport; this only tracks the attempt
// counter and last error.
type TransportState struct {
	Phase     TransportPhase
	Attempt   int
	LastError error
}

// Connected reports whether the transport is currently up.
func (s TransportState) Connected() bool {
	return s.Phase == PhaseConnected
}

// Reconnecting reports whether automatic reconnection is in progress.
// The terminal Failed phase deliberately reports false here.
func (s TransportState) Reconnecting() bool {
	return s.Phase == PhaseReconnecting
}

// RemoteConnectionState tracks connectivity per remote routing target.
// Created on the first successful handshake with a target and never
// removed for the lifetime of the client session.
type RemoteConnectionState struct {
	TargetID     string
	Connected    bool
	Reconnecting bool
	Attempts     int
	LastError    error
}

// Tracker is the client-side connectivity state machine: the primary
// transport state, one RemoteConnectionState per routing target, the
// per-target forwarded-event buffers, and the active agent id derived
// from login/logout acknowledgements.
type Tracker struct {
	mu          sync.Mutex
	transport   TransportState
	remotes     map[string]*RemoteConnectionState
	buffers     map[string]*EventRing
	bufCapacity int
	activeAgent string
}

// NewTracker creates a tracker whose per-target event buffers hold at
// most capacity events each.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = 100
	}
	return &Tracker{
		remotes:     make(map[string]*RemoteConnectionState),
		buffers:     make(map[string]*EventRing),
		bufCapacity: capacity,
	}
}

// OnConnecting records the start of the first connection attempt.
func (t *Tracker) OnConnecting() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transport.Phase = PhaseConnecting
}

// OnConnected records a successful (re)connection to a target. The
// attempt counter and last error are cleared. If the target already has
// buffered forwarded events, the buffer is cleared before the new
// session begins: the server re-sends what still applies, so replaying
// the stale buffer would duplicate rendering. Buffers of other targets
// are untouched.
func (t *Tracker) OnConnected(targetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transport = TransportState{Phase: PhaseConnected}

	remote, ok := t.remotes[targetID]
	if !ok {
		remote = &RemoteConnectionState{TargetID: targetID}
		t.remotes[targetID] = remote
	}
	remote.Connected = true
	remote.Reconnecting = false
	remote.Attempts = 0
	remote.LastError = nil

	if ring, ok := t.buffers[targetID]; ok && ring.Len() > 0 {
		ring.Clear()
	}
}

// OnDisconnected records a transport-level connection loss for a target.
func (t *Tracker) OnDisconnected(targetID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transport.Phase = PhaseReconnecting
	t.transport.LastError = err

	if remote, ok := t.remotes[targetID]; ok {
		remote.Connected = false
		remote.Reconnecting = true
		remote.LastError = err
	}
}

// OnReconnectAttempt records one reconnection attempt.
func (t *Tracker) OnReconnectAttempt(targetID string, attempt int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transport.Phase = PhaseReconnecting
	t.transport.Attempt = attempt
	if err != nil {
		t.transport.LastError = err
	}

	if remote, ok := t.remotes[targetID]; ok {
		remote.Reconnecting = true
		remote.Attempts = attempt
		if err != nil {
			remote.LastError = err
		}
	}
}

// OnFailed records that the attempt cap was exceeded. Terminal: the
// state reports neither connected nor reconnecting, and the error is
// retained.
func (t *Tracker) OnFailed(targetID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transport.Phase = PhaseFailed
	if err != nil {
		t.transport.LastError = err
	}

	if remote, ok := t.remotes[targetID]; ok {
		remote.Connected = false
		remote.Reconnecting = false
		if err != nil {
			remote.LastError = err
		}
	}
}

// OnStopped records a deliberate disconnect.
func (t *Tracker) OnStopped(targetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transport = TransportState{Phase: PhaseDisconnected}
	if remote, ok := t.remotes[targetID]; ok {
		remote.Connected = false
		remote.Reconnecting = false
	}
}

// OnForwardedEvent buffers a server-pushed event for a target and keeps
// the active agent id in sync with login/logout acknowledgements. Only a
// loginSuccess-shaped event sets the active agent; only a logoutSuccess
// event clears it, including one with a null agent id (logout while
// unauthenticated).
func (t *Tracker) OnForwardedEvent(targetID string, ev ForwardedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring, ok := t.buffers[targetID]
	if !ok {
		ring = NewEventRing(t.bufCapacity)
		t.buffers[targetID] = ring
	}

	switch ev.EventName {
	case "loginSuccess":
		// A repeated auth success for a target with buffered events is
		// a resumed session: drop the stale buffer first.
		if ring.Len() > 0 {
			ring.Clear()
		}
		if id, ok := agentIDFromPayload(ev.Payload); ok {
			t.activeAgent = id
		}
	case "logoutSuccess":
		t.activeAgent = ""
	}

	ring.Append(ev)
}

// ClearEvents drops buffered events for a target. Called when the UI
// switches the selected agent.
func (t *Tracker) ClearEvents(targetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ring, ok := t.buffers[targetID]; ok {
		ring.Clear()
	}
}

// Events returns the buffered events for a target, oldest first.
func (t *Tracker) Events(targetID string) []ForwardedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	ring, ok := t.buffers[targetID]
	if !ok {
		return nil
	}
	return ring.Events()
}

// Transport returns a snapshot of the primary transport state.
func (t *Tracker) Transport() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transport
}

// Remote returns a snapshot of the state for a target, if the target has
// ever completed a handshake.
func (t *Tracker) Remote(targetID string) (RemoteConnectionState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	remote, ok := t.remotes[targetID]
	if !ok {
		return RemoteConnectionState{}, false
	}
	return *remote, true
}

// ActiveAgent returns the agent id set by the last login acknowledgement,
// or "" when logged out.
func (t *Tracker) ActiveAgent() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeAgent
}

func agentIDFromPayload(payload map[string]any) (string, bool) {
	if payload == nil {
		return "", false
	}
	id, ok := payload["agentId"].(string)
	return id, ok
}

// now is indirected for tests.
var now = time.Now
