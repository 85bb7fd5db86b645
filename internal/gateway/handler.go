package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/forepath/agentdock/internal/auth"
	"github.com/forepath/agentdock/internal/store"
)

// clientFrame is one inbound client → server event.
type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type loginData struct {
	AgentIdentifier string `json:"agentIdentifier"`
	Credential      string `json:"credential"`
}

type chatData struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

type fileUpdateData struct {
	FilePath string `json:"filePath"`
}

// wsConn is one registered connection with its serialized writer.
type wsConn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Handler owns the WebSocket endpoint and the live connection table. It
// implements Emitter for the relay and the telemetry broadcaster.
type Handler struct {
	repo          store.Repository
	verifier      auth.Verifier
	registry      *SessionRegistry
	relay         *ChatRelay
	telemetry     *TelemetryBroadcaster
	allowedOrigin string
	isDev         bool

	connMu sync.RWMutex
	conns  map[string]*wsConn
}

// NewHandler creates the WebSocket session handler.
func NewHandler(repo store.Repository, verifier auth.Verifier, registry *SessionRegistry, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		repo:          repo,
		verifier:      verifier,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		conns:         make(map[string]*wsConn),
	}
}

// SetRelay wires the chat relay. Called once during startup.
func (h *Handler) SetRelay(relay *ChatRelay) {
	h.relay = relay
}

// SetTelemetry wires the telemetry broadcaster. Called once during startup.
func (h *Handler) SetTelemetry(telemetry *TelemetryBroadcaster) {
	h.telemetry = telemetry
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}

	connID := uuid.NewString()
	conn := &wsConn{id: connID, ws: ws}
	slog.Info("WebSocket connection opened", "connection_id", connID, "ip", r.RemoteAddr)

	h.connMu.Lock()
	h.conns[connID] = conn
	h.connMu.Unlock()

	defer func() {
		h.cleanup(connID)
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "connection_id", connID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, conn)
}

// cleanup is the disconnect path: idempotent registry removal followed
// by a telemetry release check. Duplicate disconnect signals are a known
// transport hazard and must be harmless.
func (h *Handler) cleanup(connID string) {
	h.connMu.Lock()
	delete(h.conns, connID)
	h.connMu.Unlock()

	agentID := h.registry.RemoveConnection(connID)
	if agentID != "" && h.telemetry != nil {
		h.telemetry.Release(agentID)
	}
	slog.Info("WebSocket connection closed", "connection_id", connID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, conn *wsConn) {
	for {
		_, message, err := conn.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "connection_id", conn.id)
			} else {
				slog.Warn("WebSocket read error", "error", err, "connection_id", conn.id)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			slog.Debug("Dropping malformed frame", "connection_id", conn.id, "error", err)
			continue
		}

		h.dispatch(ctx, conn.id, frame)
	}
}

func (h *Handler) dispatch(ctx context.Context, connID string, frame clientFrame) {
	switch frame.Event {
	case EventLogin:
		var data loginData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			h.Send(connID, errorFrame(EventLoginError, "malformed login request", CodeLoginError))
			return
		}
		h.handleLogin(ctx, connID, data)
	case EventChat:
		var data chatData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			h.Send(connID, errorFrame(EventError, "malformed chat request", CodeChatError))
			return
		}
		h.relay.HandleChat(ctx, connID, data.Message, data.Model)
	case EventFileUpdate:
		var data fileUpdateData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			h.Send(connID, errorFrame(EventError, "malformed file update", CodeFileUpdateError))
			return
		}
		h.handleFileUpdate(connID, data)
	case EventLogout:
		h.handleLogout(ctx, connID)
	default:
		slog.Debug("Dropping unknown event", "connection_id", connID, "event", frame.Event)
	}
}

func (h *Handler) handleLogin(ctx context.Context, connID string, data loginData) {
	agent, err := auth.ResolveAgent(ctx, h.repo, data.AgentIdentifier)
	if err != nil {
		slog.Error("Agent lookup failed during login", "connection_id", connID, "error", err)
		h.Send(connID, errorFrame(EventLoginError, "login failed", CodeLoginError))
		return
	}
	// Absent, ambiguous, and wrong-secret all collapse to the same
	// client-visible code; the distinction lives in server logs only.
	if agent == nil || !h.verifier.Verify(ctx, agent, data.Credential) {
		h.Send(connID, errorFrame(EventLoginError, "invalid credentials", CodeInvalidCredentials))
		return
	}

	prior := h.registry.Authenticate(connID, agent.ID)
	// Switching agents on a live connection may leave the old agent with
	// zero viewers; its telemetry loop must not outlive them.
	if prior != "" && prior != agent.ID && h.telemetry != nil {
		h.telemetry.Release(prior)
	}

	h.Send(connID, successFrame(EventLoginSuccess, LoginSuccessData{
		Message:   "authenticated as " + agent.Name,
		AgentID:   agent.ID,
		AgentName: agent.Name,
	}))

	// Replay goes to this connection only; other viewers already have
	// their own transcript.
	h.relay.ReplayHistory(ctx, connID, agent.ID)

	if h.telemetry != nil && agent.HasActiveContainer() {
		h.telemetry.Acquire(agent.ID, agent.ContainerID)
	}
}

func (h *Handler) handleLogout(ctx context.Context, connID string) {
	agentID := h.registry.Deauthenticate(connID)
	if agentID == "" {
		// Logout while unauthenticated still acknowledges with null
		// agent fields.
		h.Send(connID, successFrame(EventLogoutSuccess, LogoutSuccessData{
			Message: "logged out",
		}))
		return
	}

	var agentName *string
	if agent, err := h.repo.GetAgent(ctx, agentID); err == nil && agent != nil {
		agentName = &agent.Name
	}

	h.Send(connID, successFrame(EventLogoutSuccess, LogoutSuccessData{
		Message:   "logged out",
		AgentID:   &agentID,
		AgentName: agentName,
	}))

	if h.telemetry != nil {
		h.telemetry.Release(agentID)
	}
}

func (h *Handler) handleFileUpdate(connID string, data fileUpdateData) {
	agentID, ok := h.registry.AgentIDFor(connID)
	if !ok {
		h.Send(connID, errorFrame(EventError, "not authenticated", CodeUnauthorized))
		return
	}
	if data.FilePath == "" {
		h.Send(connID, errorFrame(EventError, "file path is required", CodeFileUpdateError))
		return
	}
	h.relay.BroadcastFileUpdate(connID, agentID, data.FilePath)
}

// Send delivers one frame to a connection. Sending to a connection that
// is already gone is a logged no-op.
func (h *Handler) Send(connID string, frame Frame) {
	h.connMu.RLock()
	conn, ok := h.conns[connID]
	h.connMu.RUnlock()
	if !ok {
		slog.Debug("Dropping frame for gone connection", "connection_id", connID, "event", frame.Event)
		return
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal frame", "event", frame.Event, "error", err)
		return
	}

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	if err := conn.ws.Write(context.Background(), websocket.MessageText, payload); err != nil {
		slog.Debug("WebSocket write failed", "connection_id", connID, "event", frame.Event, "error", err)
	}
}

var _ Emitter = (*Handler)(nil)
