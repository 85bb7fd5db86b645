package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// ErrNotConnected is returned when sending while the transport is down.
var ErrNotConnected = errors.New("client is not connected")

// Config holds client configuration.
type Config struct {
	// URL is the WebSocket endpoint of the relay.
	URL string
	// TargetID identifies the routing target for state tracking.
	// Defaults to URL.
	TargetID string
	// AgentIdentifier and Credential are replayed on every automatic
	// re-login after a reconnect.
	AgentIdentifier string
	Credential      string
	// MaxAttempts caps reconnection attempts before the terminal
	// failed state.
	MaxAttempts int
	// BaseBackoff and MaxBackoff bound the exponential reconnect wait.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// EventBufferSize bounds both the per-target forwarded-event ring
	// and the outbound event channel.
	EventBufferSize int
	Logger          *slog.Logger
}

func (c *Config) withDefaults() {
	if c.TargetID == "" {
		c.TargetID = c.URL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = 100
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// frame mirrors the server's event envelope.
type frame struct {
	Event     string          `json:"event"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Client is a reconnecting relay client. It supervises the transport,
// re-authenticates transparently after a network flap, and exposes
// server-pushed events on a channel. All suspension points are network
// I/O; nothing here blocks the caller's event loop.
type Client struct {
	cfg     Config
	tracker *Tracker
	logger  *slog.Logger

	events chan ForwardedEvent

	mu      sync.Mutex
	ws      *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	stopped atomic.Bool
}

// New creates a client. Connect must be called before sending.
func New(cfg Config) *Client {
	cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		tracker: NewTracker(cfg.EventBufferSize),
		logger:  cfg.Logger,
		events:  make(chan ForwardedEvent, cfg.EventBufferSize),
		done:    make(chan struct{}),
	}
}

// Tracker exposes the connectivity state machine.
func (c *Client) Tracker() *Tracker {
	return c.tracker
}

// Events is the forwardable-event bus consumed by the UI layer. Events
// are dropped, not blocked on, when the consumer falls behind.
func (c *Client) Events() <-chan ForwardedEvent {
	return c.events
}

// Connect dials the relay, logs in, and starts the supervision loop.
// The initial dial failure is returned to the caller; later transport
// losses are handled by automatic reconnection.
func (c *Client) Connect(ctx context.Context) error {
	c.tracker.OnConnecting()

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		cancel()
		c.tracker.OnStopped(c.cfg.TargetID)
		return fmt.Errorf("connect to %s: %w", c.cfg.URL, err)
	}

	c.setConn(ws)
	c.tracker.OnConnected(c.cfg.TargetID)
	if err := c.login(ctx); err != nil {
		c.logger.Warn("Initial login send failed", "error", err)
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go c.run(runCtx)
	return nil
}

// Disconnect stops the client. It synchronously stops event emission,
// then waits for the supervision loop to exit. A disconnect requested
// while reconnecting resolves promptly: the backoff wait observes the
// cancellation.
func (c *Client) Disconnect() {
	if c.stopped.Swap(true) {
		return
	}

	c.mu.Lock()
	cancel := c.cancel
	ws := c.ws
	started := c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		if err := ws.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
			c.logger.Debug("Close on disconnect", "error", err)
		}
	}
	// The supervision loop never started when the initial dial failed;
	// waiting for it would block forever.
	if started {
		<-c.done
	}
	c.tracker.OnStopped(c.cfg.TargetID)
}

// Chat sends one chat message.
func (c *Client) Chat(ctx context.Context, message, model string) error {
	return c.send(ctx, "chat", map[string]string{"message": message, "model": model})
}

// FileUpdate announces a file change.
func (c *Client) FileUpdate(ctx context.Context, filePath string) error {
	return c.send(ctx, "fileUpdate", map[string]string{"filePath": filePath})
}

// Logout releases the server-side session without closing the transport.
func (c *Client) Logout(ctx context.Context) error {
	return c.send(ctx, "logout", struct{}{})
}

// ClearEvents drops the buffered events for this client's target. Used
// when the consumer switches the selected agent.
func (c *Client) ClearEvents() {
	c.tracker.ClearEvents(c.cfg.TargetID)
}

func (c *Client) login(ctx context.Context) error {
	return c.send(ctx, "login", map[string]string{
		"agentIdentifier": c.cfg.AgentIdentifier,
		"credential":      c.cfg.Credential,
	})
}

func (c *Client) send(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil || c.stopped.Load() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}
	if err := ws.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
	return ws, err
}

func (c *Client) setConn(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for {
		err := c.readUntilError(ctx)
		if ctx.Err() != nil || c.stopped.Load() {
			return
		}

		c.logger.Info("Transport lost, reconnecting", "target", c.cfg.TargetID, "error", err)
		c.tracker.OnDisconnected(c.cfg.TargetID, err)

		if !c.reconnect(ctx, err) {
			return
		}
	}
}

func (c *Client) readUntilError(ctx context.Context) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			return err
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.logger.Debug("Dropping malformed server frame", "error", err)
			continue
		}

		ev := ForwardedEvent{
			EventName:  f.Event,
			ReceivedAt: now(),
		}
		body := f.Data
		if !f.Success {
			body = f.Error
		}
		if len(body) > 0 {
			var payload map[string]any
			if err := json.Unmarshal(body, &payload); err == nil {
				ev.Payload = payload
			}
		}

		c.tracker.OnForwardedEvent(c.cfg.TargetID, ev)
		c.emit(ev)
	}
}

// emit forwards one event to the consumer channel. A stopped client
// emits nothing; a full channel drops the event rather than blocking the
// read loop.
func (c *Client) emit(ev ForwardedEvent) {
	if c.stopped.Load() {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("Event channel full, dropping event", "event", ev.EventName)
	}
}

// reconnect runs the capped backoff loop. Returns false when the client
// was stopped or the attempt cap was exceeded (terminal failure).
func (c *Client) reconnect(ctx context.Context, lastErr error) bool {
	backoff := c.cfg.BaseBackoff

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		c.tracker.OnReconnectAttempt(c.cfg.TargetID, attempt, lastErr)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		ws, err := c.dial(ctx)
		if err != nil {
			lastErr = err
			c.logger.Debug("Reconnect attempt failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			continue
		}

		c.setConn(ws)
		c.tracker.OnConnected(c.cfg.TargetID)
		c.logger.Info("Reconnected", "target", c.cfg.TargetID, "attempt", attempt)

		// Transparent re-auth; the server replays history, and the
		// cleared buffer keeps the resumed session duplicate-free.
		if err := c.login(ctx); err != nil {
			c.logger.Warn("Re-login send failed after reconnect", "error", err)
		}
		return true
	}

	c.logger.Error("Reconnect attempts exhausted", "target", c.cfg.TargetID, "attempts", c.cfg.MaxAttempts, "error", lastErr)
	c.tracker.OnFailed(c.cfg.TargetID, lastErr)
	return false
}
