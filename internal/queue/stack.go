// Package queue provides the bounded work queue between the indexing
// producer and its workers.
//
// Items are popped most-recent first. State changes are broadcast by
// closing a per-generation channel, so every waiter wakes on any push, pop
// or close and re-checks its condition. Waiters also re-check on a short
// timer; no wait is unbounded unless the caller's context is.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Pop once the queue is closed and empty, and
// by Push after Close.
var ErrQueueClosed = errors.New("queue is closed")

// RecheckInterval is the longest a waiter sleeps before re-checking state.
const RecheckInterval = 50 * time.Millisecond

// Stack is a bounded LIFO queue safe for concurrent use.
type Stack[T any] struct {
	capacity  int
	highWater int

	mu       sync.Mutex
	items    []T
	closed   bool
	changed  chan struct{}
	maxDepth int
}

// New creates a stack holding at most capacity items. highWater is the
// depth above which producers are expected to back off; it must not exceed
// capacity.
func New[T any](capacity, highWater int) (*Stack[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", capacity)
	}
	if highWater <= 0 || highWater > capacity {
		return nil, fmt.Errorf("queue high-water %d must be in [1, %d]", highWater, capacity)
	}
	return &Stack[T]{
		capacity:  capacity,
		highWater: highWater,
		items:     make([]T, 0, highWater),
		changed:   make(chan struct{}),
	}, nil
}

// broadcast wakes every current waiter. Caller holds s.mu.
func (s *Stack[T]) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// wait blocks until state changes, the recheck interval elapses, or ctx ends.
func wait(ctx context.Context, changed <-chan struct{}, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-changed:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push adds item, blocking while the stack is at capacity.
func (s *Stack[T]) Push(ctx context.Context, item T) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrQueueClosed
		}
		if len(s.items) < s.capacity {
			s.items = append(s.items, item)
			if len(s.items) > s.maxDepth {
				s.maxDepth = len(s.items)
			}
			s.broadcast()
			s.mu.Unlock()
			return nil
		}
		changed := s.changed
		s.mu.Unlock()

		if err := wait(ctx, changed, RecheckInterval); err != nil {
			return err
		}
	}
}

// Pop removes the most recently pushed item, blocking while the stack is
// empty and open. It returns ErrQueueClosed once the stack is closed and
// drained.
func (s *Stack[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if n := len(s.items); n > 0 {
			item := s.items[n-1]
			s.items[n-1] = zero
			s.items = s.items[:n-1]
			s.broadcast()
			s.mu.Unlock()
			return item, nil
		}
		if s.closed {
			s.mu.Unlock()
			return zero, ErrQueueClosed
		}
		changed := s.changed
		s.mu.Unlock()

		if err := wait(ctx, changed, RecheckInterval); err != nil {
			return zero, err
		}
	}
}

// WaitBelowHighWater blocks while depth exceeds the high-water mark, for at
// most maxWait. It reports whether depth is at or below the mark on return.
func (s *Stack[T]) WaitBelowHighWater(ctx context.Context, maxWait time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	for {
		s.mu.Lock()
		below := len(s.items) <= s.highWater
		changed := s.changed
		s.mu.Unlock()

		if below {
			return true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if remaining > RecheckInterval {
			remaining = RecheckInterval
		}
		if err := wait(ctx, changed, remaining); err != nil {
			return false
		}
	}
}

// Close marks end of input and wakes all waiters. Items already queued can
// still be popped. Close is idempotent.
func (s *Stack[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.broadcast()
}

// Len returns the current depth.
func (s *Stack[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// MaxDepth returns the deepest the stack has been.
func (s *Stack[T]) MaxDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxDepth
}

// Closed reports whether Close has been called.
func (s *Stack[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Capacity returns the hard ceiling.
func (s *Stack[T]) Capacity() int { return s.capacity }

// HighWater returns the high-water mark.
func (s *Stack[T]) HighWater() int { return s.highWater }
