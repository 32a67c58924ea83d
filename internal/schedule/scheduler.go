package schedule

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/savegress/fleetwatch/internal/clockwork"
)

// Scheduler runs callbacks after a delay and keeps a handle on every
// outstanding task so they can all be cancelled at shutdown. It
// replaces fire-and-forget timers: nothing scheduled here outlives a
// call to Stop.
type Scheduler struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	pending map[string]clockwork.Timer
	stopped bool
}

// New creates a Scheduler driven by the given clock
func New(clk clockwork.Clock) *Scheduler {
	return &Scheduler{
		clock:   clk,
		pending: make(map[string]clockwork.Timer),
	}
}

// Schedule runs fn after delay unless the scheduler is stopped first.
// After Stop, Schedule is a no-op.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	id := uuid.New().String()
	s.pending[id] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		fn()
	})
}

// Pending returns the number of outstanding tasks
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels all outstanding tasks. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}
