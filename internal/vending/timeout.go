package vending

import (
	"sync"
	"time"
)

// TimeoutSupervisor owns at most one pending expiry timer per session.
// Scheduling a new timer always cancels the previous one; the fresh timer
// runs the full method-appropriate duration rather than extending the old
// one. Every schedule hands out an epoch token, and a firing callback is
// only honoured while its epoch is still current, so a stale timer can
// never act against a session that moved on.
type TimeoutSupervisor struct {
	mu    sync.Mutex
	timer *time.Timer
	epoch uint64

	// after is swappable so tests can intercept scheduling.
	after func(d time.Duration, fn func()) *time.Timer
}

// NewTimeoutSupervisor returns a supervisor with no pending timer.
func NewTimeoutSupervisor() *TimeoutSupervisor {
	return &TimeoutSupervisor{after: time.AfterFunc}
}

// Schedule cancels any pending timer and arms a fresh one. The callback
// receives the epoch token it must present to Valid before acting.
func (s *TimeoutSupervisor) Schedule(d time.Duration, fire func(epoch uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.epoch++
	epoch := s.epoch
	s.timer = s.after(d, func() { fire(epoch) })
	return epoch
}

// Cancel stops any pending timer and invalidates outstanding epochs.
// Cancelling after the timer fired is a no-op beyond the invalidation.
func (s *TimeoutSupervisor) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch++
}

// Valid reports whether the epoch is still the live one. A fired callback
// must check this under the machine lock before mutating anything.
func (s *TimeoutSupervisor) Valid(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return epoch == s.epoch
}

// Pending reports whether a timer is currently armed.
func (s *TimeoutSupervisor) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
