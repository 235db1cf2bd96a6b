package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/harborview/guestchat/internal/repository"
	"github.com/harborview/guestchat/pkg/agent"
	"github.com/harborview/guestchat/pkg/logger"
	"github.com/harborview/guestchat/pkg/message"
	"github.com/harborview/guestchat/pkg/transport"
)

// MaxAttempts is the attempt ceiling per outbox entry. An entry that fails
// its fifth attempt transitions its message to failed and is dropped.
const MaxAttempts = 5

// Transport performs one delivery attempt. Satisfied by *transport.Client.
type Transport interface {
	Send(ctx context.Context, cfg agent.Config, text, sessionID string) (*transport.Reply, error)
}

// Engine owns the conversation timeline and the pending-delivery queue. It
// drives delivery attempts, applies retry backoff, reconciles outcomes back
// onto the timeline, and persists after every mutation.
//
// All mutations are serialized by the engine mutex; the delivering latch
// guarantees at most one delivery pass iterates the outbox at a time. The
// network call itself happens outside the lock, so entries are handled
// sequentially within a pass without blocking Submit or Clear.
type Engine struct {
	mu         sync.Mutex
	messages   []*message.Message
	entries    []*Entry
	delivering bool
	active     string

	registry   *agent.Registry
	transport  Transport
	repo       repository.StateRepository
	sched      RetryScheduler
	backoff    func(attempt int) time.Duration
	timeoutFor func(agentID string) time.Duration
	log        *logger.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithScheduler replaces the retry scheduler (tests inject a fake here).
func WithScheduler(s RetryScheduler) EngineOption {
	return func(e *Engine) { e.sched = s }
}

// WithBackoff replaces the backoff policy.
func WithBackoff(fn func(attempt int) time.Duration) EngineOption {
	return func(e *Engine) { e.backoff = fn }
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(log *logger.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithAttemptTimeout installs a per-agent attempt timeout. Agents with no
// override (zero duration) use the transport default.
func WithAttemptTimeout(fn func(agentID string) time.Duration) EngineOption {
	return func(e *Engine) { e.timeoutFor = fn }
}

// NewEngine creates an outbox engine. The registry is injected by reference
// and treated as read-only.
func NewEngine(registry *agent.Registry, tr Transport, repo repository.StateRepository, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:  registry,
		transport: tr,
		repo:      repo,
		sched:     NewTimerScheduler(),
		backoff:   ComputeDelay,
		log:       logger.NewComponentLogger("outbox"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load restores timeline, outbox, and agent selection from the repository.
// Missing or malformed stored values fall back to empty defaults; startup
// never fails on bad state.
func (e *Engine) Load() {
	e.mu.Lock()
	defer e.mu.Unlock()

	msgRecords, err := e.repo.LoadMessages()
	if err != nil {
		e.log.Warn("Failed to load message timeline, starting empty", "error", err)
	}
	e.messages = make([]*message.Message, 0, len(msgRecords))
	for _, r := range msgRecords {
		e.messages = append(e.messages, messageFromRecord(r))
	}

	outboxRecords, err := e.repo.LoadOutbox()
	if err != nil {
		e.log.Warn("Failed to load outbox, starting empty", "error", err)
	}
	e.entries = make([]*Entry, 0, len(outboxRecords))
	for _, r := range outboxRecords {
		e.entries = append(e.entries, entryFromRecord(r))
	}

	active, err := e.repo.LoadActiveAgent()
	if err != nil {
		e.log.Warn("Failed to load active agent selection", "error", err)
	}
	if cfg, err := e.registry.Resolve(active); err != nil || cfg.Disabled {
		active = e.registry.FirstEnabled()
	}
	e.active = active

	if len(e.entries) > 0 {
		e.log.InfoWithIntention(logger.IntentionStatus, "Restored pending messages from previous run", "pending", len(e.entries))
	}
}

// Submit appends a user message in the sending state, enqueues its delivery
// obligation, and runs a delivery pass. The returned message reflects the
// outcome of the first attempt once Submit returns.
func (e *Engine) Submit(ctx context.Context, sessionID, text string) *message.Message {
	e.mu.Lock()
	msg := message.NewUserMessage(sessionID, text)
	e.messages = append(e.messages, msg)
	e.persistMessagesLocked()

	en := newEntry(msg, e.active)
	e.entries = append(e.entries, en)
	e.persistOutboxLocked()
	e.mu.Unlock()

	e.log.DebugWithIntention(logger.IntentionSend, "Message queued", "message", msg.ID(), "agent", en.AgentID)
	e.RunDeliveryPass(ctx)
	return msg
}

// RunDeliveryPass drives one pass over a snapshot of the outbox. If a pass is
// already running or the outbox is empty it returns immediately; concurrent
// callers never double-process an entry. Entries are processed independently
// and sequentially; one failure does not abort the rest.
func (e *Engine) RunDeliveryPass(ctx context.Context) {
	e.mu.Lock()
	if e.delivering || len(e.entries) == 0 {
		e.mu.Unlock()
		return
	}
	e.delivering = true
	snapshot := append([]*Entry(nil), e.entries...)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.delivering = false
		e.mu.Unlock()
	}()

	for _, en := range snapshot {
		e.deliverOne(ctx, en)
	}
}

// RetryPending triggers a delivery pass when there is pending work and no
// pass in flight. Bound to connectivity-restored notifications and manual
// user action.
func (e *Engine) RetryPending(ctx context.Context) {
	e.mu.Lock()
	pending := len(e.entries)
	running := e.delivering
	e.mu.Unlock()

	if pending == 0 || running {
		return
	}
	e.log.InfoWithIntention(logger.IntentionRetry, "Retrying pending messages", "pending", pending)
	e.RunDeliveryPass(ctx)
}

// Clear empties the timeline and the outbox and persists the empty state.
// Outstanding retry units are cancelled; a unit that already fired re-checks
// that its entry still exists and becomes a no-op.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.messages = nil
	e.entries = nil
	e.sched.CancelAll()
	e.persistMessagesLocked()
	e.persistOutboxLocked()
	e.log.InfoWithIntention(logger.IntentionCancel, "Conversation cleared")
}

// SetActiveAgent updates the delivery target selection. Unknown or disabled
// agent ids are rejected without mutating the current selection.
func (e *Engine) SetActiveAgent(id string) error {
	cfg, err := e.registry.Resolve(id)
	if err != nil {
		return err
	}
	if cfg.Disabled {
		return errors.Wrapf(agent.ErrUnknownAgent, "agent %s is disabled", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = id
	if err := e.repo.SaveActiveAgent(id); err != nil {
		e.log.Warn("Failed to persist active agent selection", "error", err)
	}
	e.log.InfoWithIntention(logger.IntentionConfig, "Active agent changed", "agent", id)
	return nil
}

// ActiveAgent returns the id of the currently selected agent.
func (e *Engine) ActiveAgent() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Messages returns a snapshot of the conversation timeline.
func (e *Engine) Messages() []*message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*message.Message(nil), e.messages...)
}

// PendingCount returns the number of undelivered outbox entries.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// deliverOne performs a single delivery attempt for one entry and reconciles
// the outcome. The network call runs outside the engine lock.
func (e *Engine) deliverOne(ctx context.Context, en *Entry) {
	e.mu.Lock()
	if !e.hasEntryLocked(en.ID) {
		// Removed by Clear (or an earlier pass) since the snapshot was taken.
		e.mu.Unlock()
		return
	}
	en.Attempts++
	e.persistOutboxLocked()
	cfg, resolveErr := e.resolveTargetLocked(en)
	e.mu.Unlock()

	var reply *transport.Reply
	var err error
	if resolveErr != nil {
		err = resolveErr
	} else {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if e.timeoutFor != nil {
			if d := e.timeoutFor(cfg.ID); d > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, d)
			}
		}
		reply, err = e.transport.Send(attemptCtx, cfg, en.Text, en.SessionID)
		if cancel != nil {
			cancel()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasEntryLocked(en.ID) {
		return
	}
	if err != nil {
		e.failAttemptLocked(en, err)
		return
	}
	e.succeedLocked(en, reply)
}

// resolveTargetLocked picks the delivery target for an entry: the agent
// pinned at submit time when it still resolves to an enabled config,
// otherwise the currently active agent.
func (e *Engine) resolveTargetLocked(en *Entry) (agent.Config, error) {
	if en.AgentID != "" {
		if cfg, err := e.registry.Resolve(en.AgentID); err == nil && !cfg.Disabled {
			return cfg, nil
		}
	}
	cfg, err := e.registry.Resolve(e.active)
	if err != nil {
		return agent.Config{}, err
	}
	if cfg.Disabled {
		return agent.Config{}, errors.Wrapf(agent.ErrUnknownAgent, "agent %s is disabled", cfg.ID)
	}
	return cfg, nil
}

func (e *Engine) succeedLocked(en *Entry, reply *transport.Reply) {
	if msg := e.findMessageLocked(en); msg != nil {
		msg.MarkSent()
	}
	if reply != nil && reply.Message != "" {
		e.messages = append(e.messages, message.NewAgentMessage(en.SessionID, reply.Message))
	}
	e.removeEntryLocked(en.ID)
	e.sched.Cancel(en.ID)
	e.persistMessagesLocked()
	e.persistOutboxLocked()
	e.log.DebugWithIntention(logger.IntentionSuccess, "Message delivered", "message", en.MessageID, "attempts", en.Attempts)
}

func (e *Engine) failAttemptLocked(en *Entry, cause error) {
	if en.Attempts >= MaxAttempts {
		if msg := e.findMessageLocked(en); msg != nil {
			msg.MarkFailed()
		}
		e.removeEntryLocked(en.ID)
		e.sched.Cancel(en.ID)
		e.persistMessagesLocked()
		e.persistOutboxLocked()
		e.log.Warn("Message delivery failed permanently", "message", en.MessageID, "attempts", en.Attempts, "error", cause)
		return
	}

	delay := e.backoff(en.Attempts)
	entryID := en.ID
	e.sched.Schedule(entryID, delay, func() {
		// The entry may have been cleared while the timer was pending.
		if !e.hasEntry(entryID) {
			return
		}
		e.RunDeliveryPass(context.Background())
	})
	e.log.DebugWithIntention(logger.IntentionRetry, "Delivery attempt failed, retry scheduled",
		"message", en.MessageID, "attempt", en.Attempts, "delay", delay, "error", cause)
}

// findMessageLocked locates the timeline message for an entry. Entries carry
// the originating message id; entries restored from older state files may
// not, so the oldest message matching (session, text, user, sending) is used
// as a fallback.
func (e *Engine) findMessageLocked(en *Entry) *message.Message {
	if en.MessageID != "" {
		for _, msg := range e.messages {
			if msg.ID() == en.MessageID {
				return msg
			}
		}
	}
	for _, msg := range e.messages {
		if msg.SessionID() == en.SessionID &&
			msg.Text() == en.Text &&
			msg.Sender() == message.SenderUser &&
			msg.DeliveryState() == message.DeliverySending {
			return msg
		}
	}
	return nil
}

func (e *Engine) hasEntryLocked(id string) bool {
	for _, en := range e.entries {
		if en.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) hasEntry(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasEntryLocked(id)
}

func (e *Engine) removeEntryLocked(id string) {
	for i, en := range e.entries {
		if en.ID == id {
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
			return
		}
	}
}

// Persistence is best-effort: failures are logged and swallowed, in-memory
// state remains authoritative for this process lifetime.
func (e *Engine) persistMessagesLocked() {
	records := make([]repository.MessageRecord, 0, len(e.messages))
	for _, msg := range e.messages {
		records = append(records, messageToRecord(msg))
	}
	if err := e.repo.SaveMessages(records); err != nil {
		e.log.Warn("Failed to persist message timeline", "error", err)
	}
}

func (e *Engine) persistOutboxLocked() {
	records := make([]repository.OutboxRecord, 0, len(e.entries))
	for _, en := range e.entries {
		records = append(records, entryToRecord(en))
	}
	if err := e.repo.SaveOutbox(records); err != nil {
		e.log.Warn("Failed to persist outbox", "error", err)
	}
}
