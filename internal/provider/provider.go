// Package provider abstracts the message protocol of agent runtimes.
//
// A Provider knows how to deliver a chat message or a one-time
// initialization prompt to an agent running inside its container, and
// carries the static metadata (display name, image) for its runtime
// flavor. Implementations are registered once at process start.
package provider

import (
	"context"
)

// Options carries per-call tuning for a provider send.
type Options struct {
	// Model overrides the runtime's default model for this turn, when
	// the runtime supports it. Empty means the provider default.
	Model string
}

// Provider is the abstraction over a specific agent-runtime's message
// protocol.
type Provider interface {
	// Type returns the registry key for this runtime flavor.
	Type() string

	// DisplayName returns the human-readable runtime name.
	DisplayName() string

	// Image returns the container image this runtime expects.
	Image() string

	// SendMessage delivers a chat message to the agent and returns the
	// raw reply text exactly as the runtime produced it.
	SendMessage(ctx context.Context, agentID, containerID, text string, opts Options) (string, error)

	// SendInitialization delivers the one-time bootstrap prompt to a
	// fresh agent.
	SendInitialization(ctx context.Context, agentID, containerID string, opts Options) error
}
