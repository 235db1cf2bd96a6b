package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/harborview/guestchat/internal/infra"
	"github.com/harborview/guestchat/pkg/agent"
	"github.com/harborview/guestchat/pkg/message"
	"github.com/harborview/guestchat/pkg/transport"
)

// mockTransport counts calls and delegates to sendFunc.
type mockTransport struct {
	mu       sync.Mutex
	calls    int
	agents   []string
	sendFunc func(call int) (*transport.Reply, error)
}

func (m *mockTransport) Send(_ context.Context, cfg agent.Config, text, sessionID string) (*transport.Reply, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.agents = append(m.agents, cfg.ID)
	m.mu.Unlock()

	if m.sendFunc != nil {
		return m.sendFunc(call)
	}
	return &transport.Reply{}, nil
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeScheduler records scheduled units and fires them only when the test
// asks. Units run on the test goroutine, never inline under the engine lock.
type fakeScheduler struct {
	mu    sync.Mutex
	units map[string]func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{units: make(map[string]func())}
}

func (s *fakeScheduler) Schedule(entryID string, _ time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[entryID] = fn
}

func (s *fakeScheduler) Cancel(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.units, entryID)
}

func (s *fakeScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = make(map[string]func())
}

// fireAll runs and removes every scheduled unit. Returns how many fired.
func (s *fakeScheduler) fireAll() int {
	s.mu.Lock()
	pending := make([]func(), 0, len(s.units))
	for id, fn := range s.units {
		pending = append(pending, fn)
		delete(s.units, id)
	}
	s.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// fireAllStale runs scheduled units without removing their targets first;
// used to simulate a timer firing after Clear.
func (s *fakeScheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

func testRegistry(t *testing.T) *agent.Registry {
	t.Helper()
	r, err := agent.NewRegistry(
		agent.Config{ID: "general", Name: "Concierge", Endpoint: "https://example.com/general"},
		agent.Config{ID: "rate", Name: "Rate Desk", Endpoint: "https://example.com/rate"},
		agent.Config{ID: "forecast", Name: "Forecast", Endpoint: "https://example.com/forecast", Disabled: true},
	)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	return r
}

func newTestEngine(t *testing.T, tr Transport) (*Engine, *fakeScheduler, *infra.MemoryStateRepository) {
	t.Helper()
	sched := newFakeScheduler()
	repo := infra.NewMemoryStateRepository()
	e := NewEngine(testRegistry(t), tr, repo, WithScheduler(sched))
	e.Load()
	return e, sched, repo
}

// drain fires scheduled retries until none remain, bounded so a broken
// engine cannot loop the test forever.
func drain(t *testing.T, sched *fakeScheduler) {
	t.Helper()
	for i := 0; i < 20; i++ {
		if sched.fireAll() == 0 {
			return
		}
	}
	t.Fatal("Retries never settled")
}

func TestSubmitDeliversAndAppendsReply(t *testing.T) {
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		return &transport.Reply{Message: "Thanks!"}, nil
	}}
	e, _, _ := newTestEngine(t, tr)

	msg := e.Submit(context.Background(), "sess-1", "Great stay!")

	if msg.DeliveryState() != message.DeliverySent {
		t.Fatalf("Expected sent, got '%s'", msg.DeliveryState())
	}
	timeline := e.Messages()
	if len(timeline) != 2 {
		t.Fatalf("Expected user message + agent reply, got %d messages", len(timeline))
	}
	if timeline[1].Sender() != message.SenderAgent || timeline[1].Text() != "Thanks!" {
		t.Fatalf("Unexpected agent reply: %s", timeline[1])
	}
	if e.PendingCount() != 0 {
		t.Fatalf("Expected empty outbox, got %d", e.PendingCount())
	}
	if tr.callCount() != 1 {
		t.Fatalf("Expected 1 transport call, got %d", tr.callCount())
	}
}

func TestSubmitFailTwiceThenSucceed(t *testing.T) {
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		if call <= 2 {
			return nil, transport.ErrNetwork
		}
		return &transport.Reply{Message: "Thanks!"}, nil
	}}
	e, sched, _ := newTestEngine(t, tr)

	msg := e.Submit(context.Background(), "sess-1", "Great stay!")
	drain(t, sched)

	if msg.DeliveryState() != message.DeliverySent {
		t.Fatalf("Expected sent after retries, got '%s'", msg.DeliveryState())
	}
	timeline := e.Messages()
	if len(timeline) != 2 || timeline[1].Text() != "Thanks!" {
		t.Fatalf("Expected agent reply appended, got %d messages", len(timeline))
	}
	if e.PendingCount() != 0 {
		t.Fatal("Expected empty outbox")
	}
	if tr.callCount() != 3 {
		t.Fatalf("Expected exactly 3 transport calls, got %d", tr.callCount())
	}
}

func TestSubmitAlwaysFailsReachesTerminalFailed(t *testing.T) {
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		return nil, transport.ErrTimeout
	}}
	e, sched, _ := newTestEngine(t, tr)

	msg := e.Submit(context.Background(), "sess-1", "x")
	drain(t, sched)

	if msg.DeliveryState() != message.DeliveryFailed {
		t.Fatalf("Expected failed, got '%s'", msg.DeliveryState())
	}
	if tr.callCount() != MaxAttempts {
		t.Fatalf("Expected exactly %d attempts, got %d", MaxAttempts, tr.callCount())
	}
	if e.PendingCount() != 0 {
		t.Fatal("Expected entry dropped after exhausting attempts")
	}
	// No agent message appended on failure
	if len(e.Messages()) != 1 {
		t.Fatalf("Expected only the user message, got %d", len(e.Messages()))
	}
}

func TestEveryMessageReachesATerminalState(t *testing.T) {
	// Liveness: mixed outcomes, every submitted message settles once all
	// scheduled retries have fired.
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		if call%3 == 0 {
			return &transport.Reply{}, nil
		}
		return nil, transport.ErrNetwork
	}}
	e, sched, _ := newTestEngine(t, tr)

	for _, text := range []string{"one", "two", "three", "four"} {
		e.Submit(context.Background(), "sess-1", text)
	}
	drain(t, sched)

	for _, msg := range e.Messages() {
		if msg.Sender() == message.SenderUser && !msg.DeliveryState().Terminal() {
			t.Fatalf("Message %q stuck in '%s'", msg.Text(), msg.DeliveryState())
		}
	}
	if e.PendingCount() != 0 {
		t.Fatalf("Expected outbox drained, got %d", e.PendingCount())
	}
}

func TestRunDeliveryPassSingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		if call == 1 {
			close(started)
			<-release
		}
		return &transport.Reply{}, nil
	}}
	e, _, _ := newTestEngine(t, tr)

	e.mu.Lock()
	msg := message.NewUserMessage("sess-1", "hello")
	e.messages = append(e.messages, msg)
	e.entries = append(e.entries, newEntry(msg, "general"))
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.RunDeliveryPass(context.Background())
		close(done)
	}()
	<-started

	// Concurrent pass while the first is blocked in the transport: no-op.
	e.RunDeliveryPass(context.Background())
	if got := tr.callCount(); got != 1 {
		t.Fatalf("Second pass double-processed the entry: %d transport calls", got)
	}

	close(release)
	<-done

	if tr.callCount() != 1 {
		t.Fatalf("Expected exactly 1 transport call, got %d", tr.callCount())
	}
	if msg.DeliveryState() != message.DeliverySent {
		t.Fatalf("Expected sent, got '%s'", msg.DeliveryState())
	}
}

func TestDuplicateTextsResolveOldestFirstWithoutIDs(t *testing.T) {
	// Entries restored from older state files carry no message id; the
	// fallback correlation must pick the oldest sending duplicate.
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		return &transport.Reply{}, nil
	}}
	e, _, _ := newTestEngine(t, tr)

	e.mu.Lock()
	first := message.NewUserMessage("sess-1", "same text")
	second := message.NewUserMessage("sess-1", "same text")
	e.messages = append(e.messages, first, second)
	en := newEntry(first, "general")
	en.MessageID = "" // legacy record
	e.entries = append(e.entries, en)
	e.mu.Unlock()

	e.RunDeliveryPass(context.Background())

	if first.DeliveryState() != message.DeliverySent {
		t.Fatalf("Oldest duplicate should be marked sent, got '%s'", first.DeliveryState())
	}
	if second.DeliveryState() != message.DeliverySending {
		t.Fatalf("Newer duplicate must stay sending, got '%s'", second.DeliveryState())
	}
}

func TestOneEntryFailureDoesNotBlockOthers(t *testing.T) {
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		if call == 1 {
			return nil, &transport.ServerError{Status: 500}
		}
		return &transport.Reply{}, nil
	}}
	e, _, _ := newTestEngine(t, tr)

	e.mu.Lock()
	a := message.NewUserMessage("sess-1", "first")
	b := message.NewUserMessage("sess-1", "second")
	e.messages = append(e.messages, a, b)
	e.entries = append(e.entries, newEntry(a, "general"), newEntry(b, "general"))
	e.mu.Unlock()

	e.RunDeliveryPass(context.Background())

	if b.DeliveryState() != message.DeliverySent {
		t.Fatalf("Second entry should deliver despite first failing, got '%s'", b.DeliveryState())
	}
	if a.DeliveryState() != message.DeliverySending {
		t.Fatalf("Failed entry should still be retrying, got '%s'", a.DeliveryState())
	}
	if e.PendingCount() != 1 {
		t.Fatalf("Expected 1 pending entry, got %d", e.PendingCount())
	}
}

func TestClearThenSubmit(t *testing.T) {
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		return &transport.Reply{}, nil
	}}
	e, _, repo := newTestEngine(t, tr)

	e.Submit(context.Background(), "sess-1", "old message")
	e.Clear()

	if len(e.Messages()) != 0 || e.PendingCount() != 0 {
		t.Fatal("Clear() must empty timeline and outbox")
	}

	e.Submit(context.Background(), "sess-1", "new message")

	timeline := e.Messages()
	if len(timeline) != 1 || timeline[0].Text() != "new message" {
		t.Fatalf("Expected exactly the new message, got %d messages", len(timeline))
	}

	// Persisted state reflects the same
	records, err := repo.LoadMessages()
	if err != nil {
		t.Fatalf("LoadMessages() failed: %v", err)
	}
	if len(records) != 1 || records[0].Text != "new message" {
		t.Fatalf("Persisted timeline out of sync: %+v", records)
	}
}

func TestStaleRetryAfterClearIsNoOp(t *testing.T) {
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		return nil, transport.ErrNetwork
	}}
	e, sched, _ := newTestEngine(t, tr)

	e.Submit(context.Background(), "sess-1", "x")
	if sched.pendingCount() != 1 {
		t.Fatalf("Expected a scheduled retry, got %d", sched.pendingCount())
	}

	// Grab the scheduled unit before Clear cancels it, simulating a timer
	// that already fired when Clear ran.
	sched.mu.Lock()
	var stale func()
	for _, fn := range sched.units {
		stale = fn
	}
	sched.mu.Unlock()

	e.Clear()
	calls := tr.callCount()

	stale()

	if tr.callCount() != calls {
		t.Fatal("Stale retry unit must not trigger delivery after Clear")
	}
}

func TestSetActiveAgent(t *testing.T) {
	tr := &mockTransport{}
	e, _, repo := newTestEngine(t, tr)

	if e.ActiveAgent() != "general" {
		t.Fatalf("Expected default active agent 'general', got '%s'", e.ActiveAgent())
	}

	if err := e.SetActiveAgent("rate"); err != nil {
		t.Fatalf("SetActiveAgent(rate) failed: %v", err)
	}
	if e.ActiveAgent() != "rate" {
		t.Fatalf("Expected 'rate', got '%s'", e.ActiveAgent())
	}

	// Unknown agent: rejected, selection unchanged, persisted value unchanged
	if err := e.SetActiveAgent("unknown"); !errors.Is(err, agent.ErrUnknownAgent) {
		t.Fatalf("Expected ErrUnknownAgent, got %v", err)
	}
	if e.ActiveAgent() != "rate" {
		t.Fatalf("Selection mutated by rejected change: '%s'", e.ActiveAgent())
	}
	persisted, _ := repo.LoadActiveAgent()
	if persisted != "rate" {
		t.Fatalf("Persisted selection mutated by rejected change: '%s'", persisted)
	}

	// Disabled agent: same rejection
	if err := e.SetActiveAgent("forecast"); !errors.Is(err, agent.ErrUnknownAgent) {
		t.Fatalf("Expected ErrUnknownAgent for disabled agent, got %v", err)
	}
	if e.ActiveAgent() != "rate" {
		t.Fatalf("Selection mutated by disabled agent: '%s'", e.ActiveAgent())
	}
}

func TestEntryPinsAgentAtSubmitTime(t *testing.T) {
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		if call == 1 {
			return nil, transport.ErrNetwork
		}
		return &transport.Reply{}, nil
	}}
	e, sched, _ := newTestEngine(t, tr)

	e.Submit(context.Background(), "sess-1", "how much is a suite?")

	// Switch agents while the retry is pending; the retry must still go to
	// the agent that was active at submit time.
	if err := e.SetActiveAgent("rate"); err != nil {
		t.Fatalf("SetActiveAgent() failed: %v", err)
	}
	drain(t, sched)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.agents) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(tr.agents))
	}
	for i, id := range tr.agents {
		if id != "general" {
			t.Fatalf("Attempt %d went to '%s', want pinned 'general'", i+1, id)
		}
	}
}

func TestRetryPendingNoOpWhenEmpty(t *testing.T) {
	tr := &mockTransport{}
	e, _, _ := newTestEngine(t, tr)

	e.RetryPending(context.Background())
	if tr.callCount() != 0 {
		t.Fatal("RetryPending on empty outbox must not call the transport")
	}
}

func TestRetryPendingDeliversRestoredOutbox(t *testing.T) {
	// Entries persisted by a previous run are restored and delivered on the
	// next retry trigger.
	repo := infra.NewMemoryStateRepository()
	sched := newFakeScheduler()

	tr1 := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		return nil, transport.ErrNetwork
	}}
	e1 := NewEngine(testRegistry(t), tr1, repo, WithScheduler(sched))
	e1.Load()
	e1.Submit(context.Background(), "sess-1", "queued offline")

	// New process: same repository, working transport.
	tr2 := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		return &transport.Reply{Message: "Got it"}, nil
	}}
	e2 := NewEngine(testRegistry(t), tr2, repo, WithScheduler(newFakeScheduler()))
	e2.Load()

	if e2.PendingCount() != 1 {
		t.Fatalf("Expected restored pending entry, got %d", e2.PendingCount())
	}

	e2.RetryPending(context.Background())

	if e2.PendingCount() != 0 {
		t.Fatal("Expected outbox drained after retry")
	}
	timeline := e2.Messages()
	if len(timeline) != 2 {
		t.Fatalf("Expected user message + reply, got %d", len(timeline))
	}
	if timeline[0].DeliveryState() != message.DeliverySent {
		t.Fatalf("Restored message should be sent, got '%s'", timeline[0].DeliveryState())
	}
}

func TestPersistenceFailuresDoNotBlockDelivery(t *testing.T) {
	tr := &mockTransport{sendFunc: func(call int) (*transport.Reply, error) {
		return &transport.Reply{Message: "ok"}, nil
	}}
	sched := newFakeScheduler()
	repo := infra.NewMemoryStateRepository()
	repo.FailWrites = true

	e := NewEngine(testRegistry(t), tr, repo, WithScheduler(sched))
	e.Load()

	msg := e.Submit(context.Background(), "sess-1", "hello")
	if msg.DeliveryState() != message.DeliverySent {
		t.Fatalf("In-memory flow must survive persistence failures, got '%s'", msg.DeliveryState())
	}
	if len(e.Messages()) != 2 {
		t.Fatalf("Expected reply appended despite persistence failures, got %d", len(e.Messages()))
	}
}

func TestLoadFallsBackToFirstEnabledAgent(t *testing.T) {
	repo := infra.NewMemoryStateRepository()
	// Persisted selection points at a disabled agent.
	if err := repo.SaveActiveAgent("forecast"); err != nil {
		t.Fatalf("SaveActiveAgent() failed: %v", err)
	}

	e := NewEngine(testRegistry(t), &mockTransport{}, repo, WithScheduler(newFakeScheduler()))
	e.Load()

	if e.ActiveAgent() != "general" {
		t.Fatalf("Expected fallback to first enabled agent, got '%s'", e.ActiveAgent())
	}
}

func TestAttemptsOnTerminalFailureIsExactlyMax(t *testing.T) {
	var lastAttempts int
	tr := &mockTransport{}
	tr.sendFunc = func(call int) (*transport.Reply, error) {
		lastAttempts = call
		return nil, transport.ErrNetwork
	}
	e, sched, _ := newTestEngine(t, tr)

	e.Submit(context.Background(), "sess-1", "x")
	drain(t, sched)

	if lastAttempts != MaxAttempts {
		t.Fatalf("Expected terminal failure at attempt %d, got %d", MaxAttempts, lastAttempts)
	}
}
