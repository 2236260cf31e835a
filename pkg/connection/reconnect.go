package connection

import (
	"sync"
	"time"

	"github.com/blockberries/encounter/pkg/clock"
)

// ReconnectScheduler holds at most one pending reconnection. Scheduling
// again cancels and replaces the pending timer rather than stacking a
// second one.
type ReconnectScheduler struct {
	clock clock.Clock
	delay time.Duration
	post  func(func())

	mu         sync.Mutex
	timer      clock.Timer
	generation uint64
}

// NewReconnectScheduler creates a scheduler. post runs the fired callback
// on the owner's serialized context; if nil the callback runs on the timer
// goroutine.
func NewReconnectScheduler(clk clock.Clock, delay time.Duration, post func(func())) *ReconnectScheduler {
	if post == nil {
		post = func(f func()) { f() }
	}
	return &ReconnectScheduler{clock: clk, delay: delay, post: post}
}

// Schedule arms the timer to call fn after the delay, replacing any timer
// already pending.
func (s *ReconnectScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	gen := s.generation
	s.timer = s.clock.AfterFunc(s.delay, func() {
		s.post(func() {
			s.mu.Lock()
			if gen != s.generation || s.timer == nil {
				s.mu.Unlock()
				return
			}
			s.timer = nil
			s.mu.Unlock()
			fn()
		})
	})
}

// Cancel stops the pending timer, if any.
func (s *ReconnectScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Pending reports whether a reconnection is scheduled.
func (s *ReconnectScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Delay returns the fixed reconnection delay.
func (s *ReconnectScheduler) Delay() time.Duration {
	return s.delay
}

func (s *ReconnectScheduler) stopLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
