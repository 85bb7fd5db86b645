// Package api provides HTTP handlers for the agentdock control API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forepath/agentdock/internal/provider"
	"github.com/forepath/agentdock/internal/store"
)

const healthCheckTimeout = 5 * time.Second

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// AgentHandler serves read-only agent metadata.
type AgentHandler struct {
	repo      store.Repository
	providers *provider.Registry
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(repo store.Repository, providers *provider.Registry) *AgentHandler {
	return &AgentHandler{repo: repo, providers: providers}
}

// agentSummary is the client-safe projection of an agent record. No
// credential material leaves the server.
type agentSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Runtime      string `json:"runtime"`
	HasContainer bool   `json:"has_container"`
}

// ListAgents returns all agents.
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.repo.ListAgents(r.Context())
	if err != nil {
		slog.Error("Failed to list agents", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}

	out := make([]agentSummary, 0, len(agents))
	for _, agent := range agents {
		out = append(out, agentSummary{
			ID:           agent.ID,
			Name:         agent.Name,
			Runtime:      agent.Runtime,
			HasContainer: agent.HasActiveContainer(),
		})
	}
	JSON(w, http.StatusOK, out)
}

// ListRuntimes returns the registered runtime types.
func (h *AgentHandler) ListRuntimes(w http.ResponseWriter, _ *http.Request) {
	types := h.providers.Types()
	out := make([]map[string]string, 0, len(types))
	for _, t := range types {
		p, err := h.providers.Resolve(t)
		if err != nil {
			continue
		}
		out = append(out, map[string]string{
			"type":         p.Type(),
			"display_name": p.DisplayName(),
			"image":        p.Image(),
		})
	}
	JSON(w, http.StatusOK, out)
}

// RegisterRoutes registers the agent metadata routes.
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/agents", h.ListAgents)
	r.Get("/api/runtimes", h.ListRuntimes)
}
