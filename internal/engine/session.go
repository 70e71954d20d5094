package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Session holds the only state shared between the controlling front end and
// in-flight downloads: a stop request and a pause switch. Both are observed
// before each download attempt, never in the middle of a transfer.
type Session struct {
	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func NewSession() *Session {
	return &Session{
		stopCh: make(chan struct{}),
		resume: make(chan struct{}),
	}
}

// Stop asks every pending download to give up. It is idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

// Done is closed once Stop has been called.
func (s *Session) Done() <-chan struct{} {
	return s.stopCh
}

func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	close(s.resume)
	s.resume = make(chan struct{})
}

// TogglePause flips the pause switch and returns the new state.
func (s *Session) TogglePause() bool {
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()

	if paused {
		s.Resume()
		return false
	}
	s.Pause()
	return true
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Wait blocks while the session is paused. It returns false if the session
// was stopped or ctx ended, true when the caller may proceed.
func (s *Session) Wait(ctx context.Context) bool {
	for {
		if s.Stopped() || ctx.Err() != nil {
			return false
		}

		s.mu.Lock()
		if !s.paused {
			s.mu.Unlock()
			return true
		}
		resume := s.resume
		s.mu.Unlock()

		select {
		case <-resume:
		case <-s.stopCh:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
