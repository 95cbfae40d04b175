package app

import (
	"context"
	"log"
	"sync"
	"time"
)

// TimerScheduler runs session timers with time.AfterFunc. Each session holds at most one pending
// timer; scheduling a newer revision replaces it.
type TimerScheduler struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingTimer
	closed  bool
	wg      sync.WaitGroup
}

type pendingTimer struct {
	revision int64
	timer    *time.Timer
}

// NewTimerScheduler returns a scheduler whose callbacks get timeout to finish their work.
func NewTimerScheduler(timeout time.Duration) *TimerScheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TimerScheduler{timeout: timeout, pending: make(map[string]*pendingTimer)}
}

func (s *TimerScheduler) Schedule(sessionID string, revision int64, delay time.Duration, task func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if current, ok := s.pending[sessionID]; ok {
		if current.revision > revision {
			return
		}
		current.timer.Stop()
	}
	entry := &pendingTimer{revision: revision}
	entry.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.pending[sessionID] != entry || s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.pending, sessionID)
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()

		// The callback owns a fresh context; the request that armed it is long gone.
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("timer for session %s panicked: %v", sessionID, r)
			}
		}()
		task(ctx)
	})
	s.pending[sessionID] = entry
}

func (s *TimerScheduler) Cancel(sessionID string, revision int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.pending[sessionID]
	if !ok || current.revision > revision {
		return
	}
	current.timer.Stop()
	delete(s.pending, sessionID)
}

// Pending reports how many sessions have an armed timer.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops every pending timer and waits for running callbacks.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
