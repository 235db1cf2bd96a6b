package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one unit of the visible conversation timeline.
// The timeline is append-only; entries are never reordered or deleted except
// by an explicit clear of the whole conversation.
type Message struct {
	id            string
	sessionID     string
	text          string
	sender        Sender
	createdAt     time.Time
	deliveryState DeliveryState
}

// NewUserMessage creates a user-authored message in the sending state.
func NewUserMessage(sessionID, text string) *Message {
	return &Message{
		id:            uuid.NewString(),
		sessionID:     sessionID,
		text:          text,
		sender:        SenderUser,
		createdAt:     time.Now(),
		deliveryState: DeliverySending,
	}
}

// NewAgentMessage creates an agent reply message. Agent messages have no
// delivery lifecycle; they exist only once delivery already succeeded.
func NewAgentMessage(sessionID, text string) *Message {
	return &Message{
		id:        uuid.NewString(),
		sessionID: sessionID,
		text:      text,
		sender:    SenderAgent,
		createdAt: time.Now(),
	}
}

// Restore rebuilds a message from persisted state, preserving its original
// identity and timestamp.
func Restore(id, sessionID, text string, sender Sender, createdAt time.Time, state DeliveryState) *Message {
	return &Message{
		id:            id,
		sessionID:     sessionID,
		text:          text,
		sender:        sender,
		createdAt:     createdAt,
		deliveryState: state,
	}
}

func (m *Message) ID() string {
	return m.id
}

func (m *Message) SessionID() string {
	return m.sessionID
}

func (m *Message) Text() string {
	return m.text
}

func (m *Message) Sender() Sender {
	return m.sender
}

func (m *Message) CreatedAt() time.Time {
	return m.createdAt
}

func (m *Message) DeliveryState() DeliveryState {
	return m.deliveryState
}

// MarkSent transitions a sending user message to sent. Terminal states are
// final; marking an already-terminal message is a no-op.
func (m *Message) MarkSent() {
	if m.sender == SenderUser && m.deliveryState == DeliverySending {
		m.deliveryState = DeliverySent
	}
}

// MarkFailed transitions a sending user message to failed.
func (m *Message) MarkFailed() {
	if m.sender == SenderUser && m.deliveryState == DeliverySending {
		m.deliveryState = DeliveryFailed
	}
}

func (m *Message) String() string {
	state := ""
	if m.deliveryState != DeliveryNone {
		state = fmt.Sprintf(", State: %s", m.deliveryState)
	}
	return fmt.Sprintf("Message(ID: %s, Session: %s, Sender: %s, Text: %q, CreatedAt: %s%s)",
		m.id, m.sessionID, m.sender, m.text, m.createdAt.Format(time.RFC3339), state)
}

// PreviewString returns a truncated, user-friendly representation for
// conversation previews
func (m *Message) PreviewString() string {
	text := m.text
	if len(text) > 150 {
		text = text[:150] + "..."
	}

	switch m.sender {
	case SenderAgent:
		return fmt.Sprintf("🤖 Agent: %s", text)
	default:
		marker := ""
		switch m.deliveryState {
		case DeliverySending:
			marker = " ⏳"
		case DeliveryFailed:
			marker = " ❌"
		}
		return fmt.Sprintf("👤 You: %s%s", text, marker)
	}
}
