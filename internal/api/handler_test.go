package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forepath/agentdock/internal/domain"
	"github.com/forepath/agentdock/internal/provider"
)

type fakeRepo struct {
	agents  []*domain.Agent
	listErr error
	pingErr error
}

func (f *fakeRepo) GetAgent(_ context.Context, agentID string) (*domain.Agent, error) {
	for _, a := range f.agents {
		if a.ID == agentID {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) GetAgentByName(_ context.Context, name string) (*domain.Agent, error) {
	for _, a := range f.agents {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateAgent(_ context.Context, agent *domain.Agent) error {
	f.agents = append(f.agents, agent)
	return nil
}

func (f *fakeRepo) ListAgents(context.Context) ([]*domain.Agent, error) {
	return f.agents, f.listErr
}

func (f *fakeRepo) CreateMessage(context.Context, *domain.ChatMessage) error { return nil }

func (f *fakeRepo) MessagesByAgentPaged(context.Context, string, int, int) ([]*domain.ChatMessage, error) {
	return nil, nil
}

func (f *fakeRepo) CountMessagesByAgent(context.Context, string) (int64, error) { return 0, nil }

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }

func (f *fakeRepo) Close() error { return nil }

func TestHealthOK(t *testing.T) {
	h := NewHealthHandler(&fakeRepo{})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "healthy" || body.Checks["database"] != "ok" {
		t.Errorf("Unexpected health body: %+v", body)
	}
}

func TestHealthDegradedOnDatabaseFailure(t *testing.T) {
	h := NewHealthHandler(&fakeRepo{pingErr: errors.New("locked out")})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "degraded" || body.Checks["database"] != "unreachable" {
		t.Errorf("Unexpected health body: %+v", body)
	}
}

func TestListAgentsHidesCredentials(t *testing.T) {
	now := time.Now()
	repo := &fakeRepo{agents: []*domain.Agent{
		{ID: "a-1", Name: "builder", CredentialHash: "$2a$10$secret", ContainerID: "ctr-1", Runtime: "claude", CreatedAt: now, UpdatedAt: now},
		{ID: "a-2", Name: "reviewer", Runtime: "opencode", CreatedAt: now, UpdatedAt: now},
	}}
	h := NewAgentHandler(repo, provider.NewRegistry())

	rec := httptest.NewRecorder()
	h.ListAgents(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	raw := rec.Body.String()
	for _, secret := range []string{"secret", "credential", "hash"} {
		if strings.Contains(strings.ToLower(raw), secret) {
			t.Errorf("Response leaks credential material (%q): %s", secret, raw)
		}
	}

	var out []map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Expected 2 agents, got %d", len(out))
	}
	if out[0]["has_container"] != true || out[1]["has_container"] != false {
		t.Errorf("Unexpected container flags: %+v", out)
	}
}

func TestListAgentsRepositoryError(t *testing.T) {
	h := NewAgentHandler(&fakeRepo{listErr: errors.New("disk gone")}, provider.NewRegistry())

	rec := httptest.NewRecorder()
	h.ListAgents(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}
