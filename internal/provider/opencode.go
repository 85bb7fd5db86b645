package provider

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

const opencodeInitPrompt = "You are running inside a managed workspace container. " +
	"Use /workspace as the project root and answer with a single JSON object " +
	"shaped like {\"response\": \"...\"} when you can."

// OpenCodeProvider drives the opencode CLI inside an agent container.
type OpenCodeProvider struct {
	cli          *client.Client
	defaultModel string
}

// NewOpenCodeProvider creates the opencode runtime provider.
func NewOpenCodeProvider(cli *client.Client, defaultModel string) *OpenCodeProvider {
	return &OpenCodeProvider{cli: cli, defaultModel: defaultModel}
}

// Type returns the registry key for the opencode runtime.
func (p *OpenCodeProvider) Type() string { return "opencode" }

// DisplayName returns the human-readable runtime name.
func (p *OpenCodeProvider) DisplayName() string { return "OpenCode" }

// Image returns the container image this runtime expects.
func (p *OpenCodeProvider) Image() string { return "agentdock/opencode-workspace:latest" }

// SendMessage runs `opencode run` and returns stdout as the raw reply.
func (p *OpenCodeProvider) SendMessage(ctx context.Context, agentID, containerID, text string, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}

	cmd := []string{"opencode", "run", "--print-logs=false"}
	if model != "" {
		cmd = append(cmd, "--model", model)
	}
	cmd = append(cmd, text)

	out, err := containerExec(ctx, p.cli, containerID, cmd)
	if err != nil {
		return "", fmt.Errorf("opencode send for agent %s: %w", agentID, err)
	}
	return out, nil
}

// SendInitialization sends the bootstrap prompt to a fresh agent.
func (p *OpenCodeProvider) SendInitialization(ctx context.Context, agentID, containerID string, opts Options) error {
	if _, err := p.SendMessage(ctx, agentID, containerID, opencodeInitPrompt, opts); err != nil {
		return fmt.Errorf("opencode initialization for agent %s: %w", agentID, err)
	}
	return nil
}
