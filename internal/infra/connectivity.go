package infra

import (
	"net"
	"sync"
	"time"

	"github.com/harborview/guestchat/pkg/logger"
)

// NetChecker reports connectivity by dialing a well-known address with a
// short timeout. A nil-config checker probes common public DNS.
type NetChecker struct {
	Addr    string
	Timeout time.Duration
}

// NewNetChecker creates a dial-based connectivity checker.
func NewNetChecker() *NetChecker {
	return &NetChecker{
		Addr:    "1.1.1.1:53",
		Timeout: 2 * time.Second,
	}
}

// Online returns true when the probe address accepts a connection.
func (c *NetChecker) Online() bool {
	conn, err := net.DialTimeout("tcp", c.Addr, c.Timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// AlwaysOnline is a checker stub for tests and --no-probe runs.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool { return true }

// Watcher polls a connectivity checker and invokes OnOnline once per
// offline-to-online transition. The zero interval defaults to 10s.
type Watcher struct {
	checker  interface{ Online() bool }
	interval time.Duration
	onOnline func()
	log      *logger.Logger

	mu      sync.Mutex
	wasUp   bool
	stopped chan struct{}
	once    sync.Once
}

// NewWatcher creates a connectivity watcher. onOnline runs on the watcher
// goroutine; keep it short or dispatch.
func NewWatcher(checker interface{ Online() bool }, interval time.Duration, onOnline func(), log *logger.Logger) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = logger.NewComponentLogger("connectivity")
	}
	return &Watcher{
		checker:  checker,
		interval: interval,
		onOnline: onOnline,
		log:      log,
		wasUp:    true, // assume online at start so startup does not double-trigger
		stopped:  make(chan struct{}),
	}
}

// Start launches the polling goroutine.
func (w *Watcher) Start() {
	go w.run()
}

// Stop terminates the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stopped) })
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopped:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	up := w.checker.Online()

	w.mu.Lock()
	transitioned := up && !w.wasUp
	w.wasUp = up
	w.mu.Unlock()

	if transitioned {
		w.log.InfoWithIntention(logger.IntentionOffline, "Connection restored, retrying pending messages")
		if w.onOnline != nil {
			w.onOnline()
		}
	}
}
