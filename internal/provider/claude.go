package provider

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

const claudeInitPrompt = "You are running inside a managed workspace container. " +
	"Treat /workspace as the project root, keep answers concise, and respond " +
	"with a single JSON object of the form {\"response\": \"...\"} when possible."

// ClaudeProvider drives the claude CLI inside an agent container.
type ClaudeProvider struct {
	cli          *client.Client
	defaultModel string
}

// NewClaudeProvider creates the claude runtime provider.
func NewClaudeProvider(cli *client.Client, defaultModel string) *ClaudeProvider {
	return &ClaudeProvider{cli: cli, defaultModel: defaultModel}
}

// Type returns the registry key for the claude runtime.
func (p *ClaudeProvider) Type() string { return "claude" }

// DisplayName returns the human-readable runtime name.
func (p *ClaudeProvider) DisplayName() string { return "Claude Code" }

// Image returns the container image this runtime expects.
func (p *ClaudeProvider) Image() string { return "agentdock/claude-workspace:latest" }

// SendMessage runs the claude CLI in print mode and returns stdout as the
// raw reply. The prompt travels as an argv element, so no shell quoting
// is involved.
func (p *ClaudeProvider) SendMessage(ctx context.Context, agentID, containerID, text string, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}

	cmd := []string{"claude", "--print", "--output-format", "json"}
	if model != "" {
		cmd = append(cmd, "--model", model)
	}
	cmd = append(cmd, text)

	out, err := containerExec(ctx, p.cli, containerID, cmd)
	if err != nil {
		return "", fmt.Errorf("claude send for agent %s: %w", agentID, err)
	}
	return out, nil
}

// SendInitialization sends the bootstrap prompt to a fresh agent.
func (p *ClaudeProvider) SendInitialization(ctx context.Context, agentID, containerID string, opts Options) error {
	if _, err := p.SendMessage(ctx, agentID, containerID, claudeInitPrompt, opts); err != nil {
		return fmt.Errorf("claude initialization for agent %s: %w", agentID, err)
	}
	return nil
}
