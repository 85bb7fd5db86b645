// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/forepath/agentdock/internal/domain"
)

// Repository defines the interface for persisting agent and message data.
type Repository interface {
	// GetAgent retrieves an agent by its opaque ID. Returns (nil, nil)
	// when no agent matches.
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)

	// GetAgentByName retrieves an agent by display name. Returns
	// (nil, nil) when no agent matches or when the name is ambiguous.
	GetAgentByName(ctx context.Context, name string) (*domain.Agent, error)

	// CreateAgent inserts a new agent record.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// ListAgents returns all agents ordered by creation time.
	ListAgents(ctx context.Context) ([]*domain.Agent, error)

	// CreateMessage appends a chat message. Messages are immutable.
	CreateMessage(ctx context.Context, msg *domain.ChatMessage) error

	// MessagesByAgentPaged returns messages for an agent in chronological
	// order, starting at offset, at most limit entries.
	MessagesByAgentPaged(ctx context.Context, agentID string, offset, limit int) ([]*domain.ChatMessage, error)

	// CountMessagesByAgent returns the number of persisted messages for an agent.
	CountMessagesByAgent(ctx context.Context, agentID string) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
