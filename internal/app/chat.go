package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/harborview/guestchat/internal/config"
	"github.com/harborview/guestchat/internal/session"
	"github.com/harborview/guestchat/pkg/agent"
	"github.com/harborview/guestchat/pkg/logger"
	"github.com/harborview/guestchat/pkg/message"
	"github.com/harborview/guestchat/pkg/outbox"
)

// Chat coordinates the conversation surface: it owns the session identity,
// routes user input through the outbox engine, and renders outcomes.
type Chat struct {
	engine   *outbox.Engine
	sessions *session.Provider
	registry *agent.Registry
	settings *config.Settings
	log      *logger.Logger
	out      io.Writer
}

// NewChat creates the chat application.
func NewChat(engine *outbox.Engine, sessions *session.Provider, registry *agent.Registry, settings *config.Settings, log *logger.Logger, out io.Writer) *Chat {
	return &Chat{
		engine:   engine,
		sessions: sessions,
		registry: registry,
		settings: settings,
		log:      log,
		out:      out,
	}
}

// OutWriter returns the writer chat output is rendered to.
func (c *Chat) OutWriter() io.Writer {
	return c.out
}

// Send submits one user message and renders the outcome: the delivery status
// of the message and any agent replies it produced. Failed delivery is
// reported on the conversation surface, not returned as an error; the message
// stays on the timeline either way.
func (c *Chat) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sessionID, err := c.sessions.EnsureSession()
	if err != nil {
		return err
	}

	before := len(c.engine.Messages())
	msg := c.engine.Submit(ctx, sessionID, text)

	// Render agent replies appended during the delivery pass.
	timeline := c.engine.Messages()
	agentName := c.agentDisplayName()
	for _, m := range timeline[min(before+1, len(timeline)):] {
		if m.Sender() == message.SenderAgent {
			WriteResponseHeader(c.out, agentName, true)
			fmt.Fprintln(c.out, m.Text())
		}
	}

	switch msg.DeliveryState() {
	case message.DeliverySending:
		fmt.Fprintln(c.out, "⏳ Message queued, will keep retrying in the background.")
	case message.DeliveryFailed:
		fmt.Fprintln(c.out, "❌ Message could not be delivered. Use /retry to try again later.")
	}
	return nil
}

// RetryPending triggers a delivery pass over queued messages.
func (c *Chat) RetryPending(ctx context.Context) {
	c.engine.RetryPending(ctx)
}

// PendingCount returns how many messages are still awaiting delivery.
func (c *Chat) PendingCount() int {
	return c.engine.PendingCount()
}

// HistoryPreview renders up to limit recent timeline entries, one per line.
func (c *Chat) HistoryPreview(limit int) string {
	timeline := c.engine.Messages()
	if len(timeline) > limit {
		timeline = timeline[len(timeline)-limit:]
	}

	var sb strings.Builder
	for _, m := range timeline {
		sb.WriteString(m.PreviewString())
		sb.WriteString("\n")
	}
	return sb.String()
}

// ClearHistory empties the conversation timeline and the pending queue.
func (c *Chat) ClearHistory() {
	c.engine.Clear()
}

// ResetSession clears the conversation and forgets the session id so the next
// message starts a fresh session.
func (c *Chat) ResetSession() error {
	c.engine.Clear()
	return c.sessions.Clear()
}

// ActiveAgent returns the config of the currently selected agent.
func (c *Chat) ActiveAgent() agent.Config {
	cfg, err := c.registry.Resolve(c.engine.ActiveAgent())
	if err != nil {
		return agent.Config{ID: c.engine.ActiveAgent()}
	}
	return cfg
}

// Agents lists all configured agent backends in registration order.
func (c *Chat) Agents() []agent.Config {
	return c.registry.List()
}

// SelectAgent switches the delivery target for subsequent messages.
func (c *Chat) SelectAgent(id string) error {
	return c.engine.SetActiveAgent(id)
}

func (c *Chat) agentDisplayName() string {
	cfg := c.ActiveAgent()
	if cfg.Name != "" {
		return cfg.Name
	}
	return cfg.ID
}
