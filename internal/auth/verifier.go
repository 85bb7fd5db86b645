// Package auth provides agent credential verification for the gateway.
package auth

import (
	"context"
	"log/slog"

	"github.com/forepath/agentdock/internal/domain"
	"github.com/forepath/agentdock/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Verifier checks an agent secret against its stored credential hash.
type Verifier interface {
	// Verify reports whether secret matches the agent's credential.
	Verify(ctx context.Context, agent *domain.Agent, secret string) bool
}

// BcryptVerifier verifies secrets against bcrypt hashes.
type BcryptVerifier struct{}

// NewBcryptVerifier creates a bcrypt-backed credential verifier.
func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{}
}

// Verify reports whether secret matches the agent's bcrypt credential hash.
// The reason for a mismatch is logged server-side only; callers get a bare
// boolean so nothing about the failure leaks to clients.
func (v *BcryptVerifier) Verify(_ context.Context, agent *domain.Agent, secret string) bool {
	if agent == nil {
		return false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(agent.CredentialHash), []byte(secret)); err != nil {
		slog.Info("Credential verification failed", "agent_id", agent.ID, "reason", "bad_secret")
		return false
	}
	return true
}

// HashCredential produces a bcrypt hash for a new agent secret. Used by
// provisioning and test seeding.
func HashCredential(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ResolveAgent resolves a login identifier to an agent record. The
// identifier is tried first as an opaque ID, then as a display name.
// Absent and ambiguous matches both yield (nil, nil); the distinction
// stays in server logs.
func ResolveAgent(ctx context.Context, repo store.Repository, identifier string) (*domain.Agent, error) {
	agent, err := repo.GetAgent(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if agent != nil {
		return agent, nil
	}

	agent, err = repo.GetAgentByName(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		slog.Info("Agent lookup failed", "identifier", identifier, "reason", "not_found")
	}
	return agent, nil
}
