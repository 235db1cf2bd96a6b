package outbox

import (
	"time"

	"github.com/google/uuid"

	"github.com/harborview/guestchat/internal/repository"
	"github.com/harborview/guestchat/pkg/message"
)

// Entry is a pending delivery obligation, decoupled from the timeline
// message so retries never duplicate timeline entries. MessageID points at
// the originating message; AgentID pins the delivery target chosen at submit
// time.
type Entry struct {
	ID        string
	MessageID string
	AgentID   string
	SessionID string
	Text      string
	CreatedAt time.Time
	Attempts  int
}

func newEntry(msg *message.Message, agentID string) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		MessageID: msg.ID(),
		AgentID:   agentID,
		SessionID: msg.SessionID(),
		Text:      msg.Text(),
		CreatedAt: time.Now(),
	}
}

func entryToRecord(en *Entry) repository.OutboxRecord {
	return repository.OutboxRecord{
		ID:        en.ID,
		MessageID: en.MessageID,
		AgentID:   en.AgentID,
		SessionID: en.SessionID,
		Text:      en.Text,
		CreatedAt: en.CreatedAt,
		Attempts:  en.Attempts,
	}
}

func entryFromRecord(r repository.OutboxRecord) *Entry {
	return &Entry{
		ID:        r.ID,
		MessageID: r.MessageID,
		AgentID:   r.AgentID,
		SessionID: r.SessionID,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
		Attempts:  r.Attempts,
	}
}

func messageToRecord(msg *message.Message) repository.MessageRecord {
	return repository.MessageRecord{
		ID:            msg.ID(),
		SessionID:     msg.SessionID(),
		Text:          msg.Text(),
		Sender:        msg.Sender().String(),
		CreatedAt:     msg.CreatedAt(),
		DeliveryState: msg.DeliveryState().String(),
	}
}

func messageFromRecord(r repository.MessageRecord) *message.Message {
	return message.Restore(
		r.ID,
		r.SessionID,
		r.Text,
		message.ParseSender(r.Sender),
		r.CreatedAt,
		message.ParseDeliveryState(r.DeliveryState),
	)
}
