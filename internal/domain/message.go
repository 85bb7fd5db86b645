package domain

import (
	"time"
)

// Actor identifies which side of a conversation produced a message.
type Actor string

const (
	// ActorUser marks a message typed by a human operator.
	ActorUser Actor = "user"
	// ActorAgent marks a message produced by the agent runtime.
	ActorAgent Actor = "agent"
)

// ChatMessage is a persisted chat turn. Messages are immutable after
// creation; the relay only appends and reads ranges ordered by CreatedAt.
type ChatMessage struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Actor     Actor     `json:"actor"`
	RawText   string    `json:"raw_text"`
	Filtered  bool      `json:"filtered"`
	CreatedAt time.Time `json:"created_at"`
}
