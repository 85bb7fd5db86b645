// Package domain contains core domain types for the agentdock gateway.
package domain

import (
	"time"
)

// Agent represents a managed AI coding agent with its container state.
// Agent records are created by provisioning and are read-only to the
// gateway: the relay never mutates them.
type Agent struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CredentialHash string    `json:"-"`
	ContainerID    string    `json:"container_id,omitempty"`
	Runtime        string    `json:"runtime"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasActiveContainer returns true if the agent has a non-empty container ID.
func (a *Agent) HasActiveContainer() bool {
	return a.ContainerID != ""
}
