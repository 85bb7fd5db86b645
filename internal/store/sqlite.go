package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/forepath/agentdock/internal/domain"
	"github.com/forepath/agentdock/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	messageWriteRetries   = 3
	messageWriteBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		credential_hash TEXT NOT NULL,
		container_id TEXT,
		runtime TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agents_name ON agents(name);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		filtered INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_agent_created ON messages(agent_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	query := `
		SELECT id, name, credential_hash, container_id, runtime, created_at, updated_at
		FROM agents WHERE id = ?`

	return s.scanAgent(s.db.QueryRowContext(ctx, query, agentID))
}

// GetAgentByName retrieves an agent by display name. An ambiguous name
// (more than one match) is treated as no match; the caller cannot tell
// the difference, which is intentional for the login path.
func (s *SQLiteStore) GetAgentByName(ctx context.Context, name string) (*domain.Agent, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE name = ?`, name).Scan(&count); err != nil {
		return nil, fmt.Errorf("count agents by name: %w", err)
	}
	if count > 1 {
		slog.Warn("Ambiguous agent name lookup", "name", name, "matches", count)
		return nil, nil
	}

	query := `
		SELECT id, name, credential_hash, container_id, runtime, created_at, updated_at
		FROM agents WHERE name = ?`

	return s.scanAgent(s.db.QueryRowContext(ctx, query, name))
}

func (s *SQLiteStore) scanAgent(row *sql.Row) (*domain.Agent, error) {
	var agent domain.Agent
	var containerID sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&agent.ID, &agent.Name, &agent.CredentialHash, &containerID,
		&agent.Runtime, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}

	agent.ContainerID = containerID.String
	agent.CreatedAt = time.Unix(createdAt, 0)
	agent.UpdatedAt = time.Unix(updatedAt, 0)

	return &agent, nil
}

// CreateAgent inserts a new agent record.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	now := time.Now()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	query := `
		INSERT INTO agents (id, name, credential_hash, container_id, runtime, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		agent.ID, agent.Name, agent.CredentialHash, nullable(agent.ContainerID),
		agent.Runtime, agent.CreatedAt.Unix(), agent.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert agent %s: %w", agent.ID, err)
	}
	return nil
}

// ListAgents returns all agents ordered by creation time.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	query := `
		SELECT id, name, credential_hash, container_id, runtime, created_at, updated_at
		FROM agents ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Debug("Failed to close agent rows", "error", closeErr)
		}
	}()

	var agents []*domain.Agent
	for rows.Next() {
		var agent domain.Agent
		var containerID sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&agent.ID, &agent.Name, &agent.CredentialHash, &containerID,
			&agent.Runtime, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agent.ContainerID = containerID.String
		agent.CreatedAt = time.Unix(createdAt, 0)
		agent.UpdatedAt = time.Unix(updatedAt, 0)
		agents = append(agents, &agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return agents, nil
}

// CreateMessage appends a chat message. Retries on SQLite busy/locked
// errors with exponential backoff since relay turns for different
// connections may write concurrently.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO messages (id, agent_id, actor, raw_text, filtered, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	var err error
	for i := 0; i < messageWriteRetries; i++ {
		// Millisecond timestamps keep user/agent turns within one
		// second in chronological order on replay.
		_, err = s.db.ExecContext(ctx, query,
			msg.ID, msg.AgentID, string(msg.Actor), msg.RawText,
			boolToInt(msg.Filtered), msg.CreatedAt.UnixMilli(),
		)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == messageWriteRetries-1 {
			break
		}
		delay := messageWriteBaseDelay * time.Duration(1<<i)
		slog.Debug("Message insert hit SQLITE_BUSY, retrying",
			"agent_id", msg.AgentID,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("insert message for agent %s: %w", msg.AgentID, err)
}

// MessagesByAgentPaged returns messages in chronological order.
func (s *SQLiteStore) MessagesByAgentPaged(ctx context.Context, agentID string, offset, limit int) ([]*domain.ChatMessage, error) {
	query := `
		SELECT id, agent_id, actor, raw_text, filtered, created_at
		FROM messages WHERE agent_id = ?
		ORDER BY created_at, rowid
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, agentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages for agent %s: %w", agentID, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Debug("Failed to close message rows", "error", closeErr)
		}
	}()

	var msgs []*domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		var actor string
		var filtered int
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.AgentID, &actor, &msg.RawText, &filtered, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Actor = domain.Actor(actor)
		msg.Filtered = filtered != 0
		msg.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return msgs, nil
}

// CountMessagesByAgent returns the number of persisted messages for an agent.
func (s *SQLiteStore) CountMessagesByAgent(ctx context.Context, agentID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE agent_id = ?`, agentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages for agent %s: %w", agentID, err)
	}
	return count, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
