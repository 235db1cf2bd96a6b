package outbox

import (
	"sync"
	"time"
)

// RetryScheduler schedules at most one delayed unit of work per outbox entry.
// Scheduling again under the same id replaces the previous unit; cancellation
// is keyed by entry id so Clear can drop everything outstanding.
type RetryScheduler interface {
	Schedule(entryID string, delay time.Duration, fn func())
	Cancel(entryID string)
	CancelAll()
}

// timerScheduler is the production RetryScheduler backed by time.AfterFunc.
type timerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerScheduler creates a timer-backed retry scheduler.
func NewTimerScheduler() RetryScheduler {
	return &timerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *timerScheduler) Schedule(entryID string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[entryID]; ok {
		t.Stop()
	}
	s.timers[entryID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, entryID)
		s.mu.Unlock()
		fn()
	})
}

func (s *timerScheduler) Cancel(entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[entryID]; ok {
		t.Stop()
		delete(s.timers, entryID)
	}
}

func (s *timerScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
