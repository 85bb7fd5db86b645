package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forepath/agentdock/internal/domain"
	"github.com/forepath/agentdock/internal/provider"
	"github.com/forepath/agentdock/internal/store"
)

// ChatRelay orchestrates a chat turn: persist the inbound message, send
// the one-time initialization to a fresh agent, forward to the runtime
// provider, normalize the reply, persist it, and broadcast both turns to
// every viewer of the agent.
type ChatRelay struct {
	repo      store.Repository
	providers *provider.Registry
	registry  *SessionRegistry
	emitter   Emitter
	logger    *slog.Logger

	historyPageSize int

	// initialized tracks agents that received their bootstrap prompt
	// since this process started. Process-wide, never persisted: a
	// restart re-triggers initialization only for agents whose history
	// is empty at that point.
	initMu      sync.Mutex
	initialized map[string]struct{}
}

// NewChatRelay creates a chat relay.
func NewChatRelay(repo store.Repository, providers *provider.Registry, registry *SessionRegistry, emitter Emitter, historyPageSize int, logger *slog.Logger) *ChatRelay {
	if logger == nil {
		logger = slog.Default()
	}
	if historyPageSize <= 0 {
		historyPageSize = 200
	}
	return &ChatRelay{
		repo:            repo,
		providers:       providers,
		registry:        registry,
		emitter:         emitter,
		logger:          logger,
		historyPageSize: historyPageSize,
		initialized:     make(map[string]struct{}),
	}
}

// HandleChat runs one chat turn for the given connection. The user-turn
// broadcast always precedes the agent-turn broadcast; no ordering is
// guaranteed across turns from different connections.
func (r *ChatRelay) HandleChat(ctx context.Context, connID, text, modelHint string) {
	agentID, ok := r.registry.AgentIDFor(connID)
	if !ok {
		r.emitter.Send(connID, errorFrame(EventError, "not authenticated", CodeUnauthorized))
		return
	}

	// Whitespace-only input is noise, not an error.
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	agent, err := r.repo.GetAgent(ctx, agentID)
	if err != nil || agent == nil {
		r.logger.Error("Chat turn failed to resolve agent", "agent_id", agentID, "error", err)
		r.emitter.Send(connID, errorFrame(EventError, "failed to process chat message", CodeChatError))
		return
	}

	prov, err := r.providers.Resolve(agent.Runtime)
	if err != nil {
		r.logger.Error("Chat turn failed to resolve provider", "agent_id", agentID, "runtime", agent.Runtime, "error", err)
		r.emitter.Send(connID, errorFrame(EventError, "failed to process chat message", CodeChatError))
		return
	}

	// Count before the user-turn persist: initialization fires only
	// when history was empty prior to this turn.
	priorCount, countErr := r.repo.CountMessagesByAgent(ctx, agentID)
	if countErr != nil {
		r.logger.Warn("Failed to count prior history", "agent_id", agentID, "error", countErr)
	}

	userMsg := &domain.ChatMessage{
		ID:      uuid.NewString(),
		AgentID: agentID,
		Actor:   domain.ActorUser,
		RawText: trimmed,
	}
	if err := r.repo.CreateMessage(ctx, userMsg); err != nil {
		// The broadcast still happens so the sender sees their own
		// message; the write failure only costs durability.
		r.logger.Error("Failed to persist user message", "agent_id", agentID, "error", err)
	}

	r.broadcast(agentID, successFrame(EventChatMessage, ChatMessageData{
		From:      string(domain.ActorUser),
		Text:      trimmed,
		Timestamp: isoNow(),
	}))

	if countErr == nil && priorCount == 0 && !r.isInitialized(agentID) {
		// Marked before the outcome is known: a failed bootstrap is
		// never retried, avoiding a retry storm on a broken runtime.
		r.markInitialized(agentID)
		if err := prov.SendInitialization(ctx, agentID, agent.ContainerID, provider.Options{Model: modelHint}); err != nil {
			r.logger.Warn("Agent initialization failed, continuing turn", "agent_id", agentID, "error", err)
		}
	}

	reply, err := prov.SendMessage(ctx, agentID, agent.ContainerID, trimmed, provider.Options{Model: modelHint})
	if err != nil {
		// Visible to users as silence, not an error banner.
		r.logger.Error("Provider send failed", "agent_id", agentID, "runtime", agent.Runtime, "error", err)
		return
	}
	if strings.TrimSpace(reply) == "" {
		return
	}

	parsed := NormalizeReply(reply)

	agentMsg := &domain.ChatMessage{
		ID:      uuid.NewString(),
		AgentID: agentID,
		Actor:   domain.ActorAgent,
		RawText: reply,
	}
	if err := r.repo.CreateMessage(ctx, agentMsg); err != nil {
		r.logger.Error("Failed to persist agent reply", "agent_id", agentID, "error", err)
	}

	r.broadcast(agentID, successFrame(EventChatMessage, ChatMessageData{
		From:      string(domain.ActorAgent),
		Response:  parsed,
		Timestamp: isoNow(),
	}))
}

// ReplayHistory pushes the agent's persisted transcript to a single
// newly authenticated connection, applying the same normalization rule
// as live traffic. A fetch failure is logged and swallowed so the login
// still succeeds with an empty transcript.
func (r *ChatRelay) ReplayHistory(ctx context.Context, connID, agentID string) {
	msgs, err := r.repo.MessagesByAgentPaged(ctx, agentID, 0, r.historyPageSize)
	if err != nil {
		r.logger.Warn("History fetch failed during login, replaying nothing", "agent_id", agentID, "error", err)
		return
	}

	for _, msg := range msgs {
		data := ChatMessageData{
			From:      string(msg.Actor),
			Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if msg.Actor == domain.ActorAgent {
			data.Response = NormalizeReply(msg.RawText)
		} else {
			data.Text = msg.RawText
		}
		r.emitter.Send(connID, successFrame(EventChatMessage, data))
	}
}

// BroadcastFileUpdate notifies every viewer of the agent about a file
// change, carrying the originating connection id in every copy.
func (r *ChatRelay) BroadcastFileUpdate(connID, agentID, filePath string) {
	r.broadcast(agentID, successFrame(EventFileUpdateNotification, FileUpdateData{
		SocketID:  connID,
		FilePath:  filePath,
		Timestamp: isoNow(),
	}))
}

func (r *ChatRelay) broadcast(agentID string, frame Frame) {
	for _, connID := range r.registry.ConnectionsFor(agentID) {
		r.emitter.Send(connID, frame)
	}
}

func (r *ChatRelay) isInitialized(agentID string) bool {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	_, ok := r.initialized[agentID]
	return ok
}

func (r *ChatRelay) markInitialized(agentID string) {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	r.initialized[agentID] = struct{}{}
}
