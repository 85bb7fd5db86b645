package client

import (
	"context"
	"testing"
	"time"
)

func TestDisconnectAfterFailedConnectReturns(t *testing.T) {
	c := New(Config{
		URL:             "ws://127.0.0.1:1",
		AgentIdentifier: "builder",
		Credential:      "secret",
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("Expected the dial to fail")
	}
	if got := c.Tracker().Transport().Phase; got != PhaseDisconnected {
		t.Errorf("Expected disconnected phase after failed connect, got %s", got)
	}

	done := make(chan struct{})
	go func() {
		c.Disconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect() did not return after a failed Connect()")
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"})

	if err := c.Chat(context.Background(), "hello", ""); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}
