// File: fibersync/semaphore.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fibersync

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/fibrio/fiber"
)

// Semaphore is a counting semaphore with strict FIFO wakeup order.
// Signal hands its token directly to the oldest waiter, so no later
// arrival can barge past a parked one.
type Semaphore struct {
	mu      sync.Mutex
	tokens  int64
	waiters *queue.Queue
}

// NewSemaphore creates a semaphore holding n tokens.
func NewSemaphore(n int64) *Semaphore {
	return &Semaphore{tokens: n, waiters: queue.New()}
}

// Wait takes one token, parking the caller while none are available.
// fb may be nil for a plain goroutine wait.
func (s *Semaphore) Wait(fb *fiber.Fiber) {
	s.mu.Lock()
	if s.tokens > 0 && s.waiters.Length() == 0 {
		s.tokens--
		s.mu.Unlock()
		return
	}
	w := newWaiter(fb)
	s.waiters.Add(w)
	s.mu.Unlock()
	w.park()
	// the token was transferred by Signal, nothing left to take
}

// Signal returns one token. If a waiter is parked the token is handed
// to it directly.
func (s *Semaphore) Signal() {
	s.mu.Lock()
	for s.waiters.Length() > 0 {
		w := s.waiters.Remove().(*waiter)
		if w.tryClaim() {
			s.mu.Unlock()
			w.wake()
			return
		}
	}
	s.tokens++
	s.mu.Unlock()
}

// Available returns the number of free tokens.
func (s *Semaphore) Available() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}
