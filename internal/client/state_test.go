package client

import (
	"errors"
	"testing"
	"time"
)

func forwarded(name string, payload map[string]any) ForwardedEvent {
	return ForwardedEvent{EventName: name, Payload: payload, ReceivedAt: time.Now()}
}

func TestTrackerInitialPhaseDisconnected(t *testing.T) {
	tracker := NewTracker(10)

	if got := tracker.Transport().Phase; got != PhaseDisconnected {
		t.Errorf("Expected initial phase disconnected, got %s", got)
	}
	if _, ok := tracker.Remote("gw-1"); ok {
		t.Error("Expected no remote state before any handshake")
	}
}

func TestTrackerConnectLifecycle(t *testing.T) {
	tracker := NewTracker(10)

	tracker.OnConnecting()
	if got := tracker.Transport().Phase; got != PhaseConnecting {
		t.Fatalf("Expected connecting, got %s", got)
	}

	tracker.OnConnected("gw-1")
	state := tracker.Transport()
	if !state.Connected() || state.Attempt != 0 || state.LastError != nil {
		t.Errorf("Expected clean connected state, got %+v", state)
	}
	remote, ok := tracker.Remote("gw-1")
	if !ok || !remote.Connected || remote.Reconnecting {
		t.Errorf("Expected connected remote state, got %+v (ok=%v)", remote, ok)
	}
}

func TestTrackerDisconnectAndReconnectAttempts(t *testing.T) {
	tracker := NewTracker(10)
	tracker.OnConnected("gw-1")

	lost := errors.New("connection reset")
	tracker.OnDisconnected("gw-1", lost)

	state := tracker.Transport()
	if !state.Reconnecting() {
		t.Fatalf("Expected reconnecting after loss, got %s", state.Phase)
	}
	if state.LastError != lost {
		t.Errorf("Expected loss error retained, got %v", state.LastError)
	}

	refused := errors.New("connection refused")
	tracker.OnReconnectAttempt("gw-1", 1, refused)
	tracker.OnReconnectAttempt("gw-1", 2, nil)

	state = tracker.Transport()
	if state.Attempt != 2 {
		t.Errorf("Expected attempt counter 2, got %d", state.Attempt)
	}
	// A nil-error attempt must not erase the last recorded error.
	if state.LastError != refused {
		t.Errorf("Expected last error kept, got %v", state.LastError)
	}
	remote, _ := tracker.Remote("gw-1")
	if remote.Connected || !remote.Reconnecting || remote.Attempts != 2 {
		t.Errorf("Expected reconnecting remote with 2 attempts, got %+v", remote)
	}
}

func TestTrackerReconnectSuccessResetsCounters(t *testing.T) {
	tracker := NewTracker(10)
	tracker.OnConnected("gw-1")
	tracker.OnDisconnected("gw-1", errors.New("gone"))
	tracker.OnReconnectAttempt("gw-1", 3, errors.New("still down"))

	tracker.OnConnected("gw-1")

	state := tracker.Transport()
	if !state.Connected() || state.Attempt != 0 || state.LastError != nil {
		t.Errorf("Expected counters reset on reconnect, got %+v", state)
	}
	remote, _ := tracker.Remote("gw-1")
	if remote.Attempts != 0 || remote.LastError != nil {
		t.Errorf("Expected remote counters reset, got %+v", remote)
	}
}

func TestTrackerFailedIsTerminal(t *testing.T) {
	tracker := NewTracker(10)
	tracker.OnConnected("gw-1")
	tracker.OnDisconnected("gw-1", errors.New("gone"))

	capErr := errors.New("attempt cap exceeded")
	tracker.OnFailed("gw-1", capErr)

	state := tracker.Transport()
	if state.Phase != PhaseFailed {
		t.Fatalf("Expected failed phase, got %s", state.Phase)
	}
	if state.Connected() || state.Reconnecting() {
		t.Error("Failed state must report neither connected nor reconnecting")
	}
	if state.LastError != capErr {
		t.Errorf("Expected cap error retained, got %v", state.LastError)
	}
	remote, _ := tracker.Remote("gw-1")
	if remote.Connected || remote.Reconnecting {
		t.Errorf("Expected remote settled, got %+v", remote)
	}
}

func TestTrackerStoppedClearsTransport(t *testing.T) {
	tracker := NewTracker(10)
	tracker.OnConnected("gw-1")
	tracker.OnDisconnected("gw-1", errors.New("gone"))

	tracker.OnStopped("gw-1")

	state := tracker.Transport()
	if state.Phase != PhaseDisconnected || state.LastError != nil || state.Attempt != 0 {
		t.Errorf("Expected pristine disconnected state, got %+v", state)
	}
}

func TestTrackerBufferClearedOnReconnectToSameTarget(t *testing.T) {
	tracker := NewTracker(10)
	tracker.OnConnected("gw-1")
	tracker.OnForwardedEvent("gw-1", forwarded("chatMessage", map[string]any{"text": "one"}))
	tracker.OnForwardedEvent("gw-1", forwarded("chatMessage", map[string]any{"text": "two"}))
	tracker.OnForwardedEvent("gw-2", forwarded("chatMessage", map[string]any{"text": "other"}))

	tracker.OnDisconnected("gw-1", errors.New("gone"))
	tracker.OnConnected("gw-1")

	if got := len(tracker.Events("gw-1")); got != 0 {
		t.Errorf("Expected stale buffer cleared on reconnect, got %d events", got)
	}
	if got := len(tracker.Events("gw-2")); got != 1 {
		t.Errorf("Expected other target's buffer untouched, got %d events", got)
	}
}

func TestTrackerRepeatedLoginClearsBuffer(t *testing.T) {
	tracker := NewTracker(10)
	tracker.OnConnected("gw-1")
	tracker.OnForwardedEvent("gw-1", forwarded("loginSuccess", map[string]any{"agentId": "agent-a"}))
	tracker.OnForwardedEvent("gw-1", forwarded("chatMessage", map[string]any{"text": "hi"}))

	tracker.OnForwardedEvent("gw-1", forwarded("loginSuccess", map[string]any{"agentId": "agent-a"}))

	events := tracker.Events("gw-1")
	if len(events) != 1 || events[0].EventName != "loginSuccess" {
		t.Errorf("Expected only the fresh loginSuccess buffered, got %+v", events)
	}
}

func TestTrackerActiveAgentFollowsAcknowledgements(t *testing.T) {
	tracker := NewTracker(10)

	// Ordinary forwarded events never touch the active agent.
	tracker.OnForwardedEvent("gw-1", forwarded("chatMessage", map[string]any{"text": "hi"}))
	if got := tracker.ActiveAgent(); got != "" {
		t.Fatalf("Expected no active agent yet, got %q", got)
	}

	tracker.OnForwardedEvent("gw-1", forwarded("loginSuccess", map[string]any{"agentId": "agent-a"}))
	if got := tracker.ActiveAgent(); got != "agent-a" {
		t.Errorf("Expected agent-a active, got %q", got)
	}

	// A logout acknowledgement with a null agent id still clears.
	tracker.OnForwardedEvent("gw-1", forwarded("logoutSuccess", map[string]any{"agentId": nil}))
	if got := tracker.ActiveAgent(); got != "" {
		t.Errorf("Expected active agent cleared, got %q", got)
	}
}

func TestTrackerClearEvents(t *testing.T) {
	tracker := NewTracker(10)
	tracker.OnForwardedEvent("gw-1", forwarded("chatMessage", map[string]any{"text": "hi"}))

	tracker.ClearEvents("gw-1")
	tracker.ClearEvents("gw-never-seen")

	if got := len(tracker.Events("gw-1")); got != 0 {
		t.Errorf("Expected buffer emptied, got %d events", got)
	}
}
