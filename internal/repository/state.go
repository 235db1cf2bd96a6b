package repository

import (
	"time"
)

// Persisted keys for chat state. Each key maps to one JSON document in the
// backing store; writes are full-value overwrites.
const (
	KeyMessages    = "chat.messages"
	KeyOutbox      = "chat.outbox"
	KeyActiveAgent = "chat.activeAgent"
)

// MessageRecord is the serializable form of a timeline message.
type MessageRecord struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	Text          string    `json:"text"`
	Sender        string    `json:"sender"`
	CreatedAt     time.Time `json:"createdAt"`
	DeliveryState string    `json:"deliveryState,omitempty"`
}

// OutboxRecord is the serializable form of a pending delivery obligation.
// MessageID and AgentID were added after the first state format; records
// restored without them are still honored (see the engine's correlation
// fallback).
type OutboxRecord struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId,omitempty"`
	AgentID   string    `json:"agentId,omitempty"`
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Attempts  int       `json:"attempts"`
}

// StateRepository abstracts durable chat state persistence. Implementations
// are best-effort: in-memory state stays authoritative and callers log and
// swallow persistence failures.
type StateRepository interface {
	LoadMessages() ([]MessageRecord, error)
	SaveMessages(records []MessageRecord) error

	LoadOutbox() ([]OutboxRecord, error)
	SaveOutbox(records []OutboxRecord) error

	LoadActiveAgent() (string, error)
	SaveActiveAgent(id string) error

	// Clear removes all persisted chat state.
	Clear() error
}
