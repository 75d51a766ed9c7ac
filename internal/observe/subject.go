// Package observe provides a small synchronous publish/subscribe primitive.
//
// A Subject holds a current value. Subscribe hands the current value to the
// new subscriber before returning, and Publish delivers each new value to
// every live subscriber in subscription order before it returns.
package observe

import (
	"sync"
	"sync/atomic"
)

type subscriber[T any] struct {
	id     uint64
	fn     func(T)
	active atomic.Bool
}

// Subject is safe for concurrent use. Callbacks run on the publishing
// goroutine and must not call Publish or Subscribe on the same Subject.
type Subject[T any] struct {
	deliver sync.Mutex

	mu     sync.Mutex
	value  T
	subs   []*subscriber[T]
	nextID uint64
}

func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial}
}

// Value returns the most recently published value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Subscribe registers fn and immediately calls it with the current value.
// The returned func removes the subscription; calling it more than once is a no-op.
func (s *Subject[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.nextID++
	sub := &subscriber[T]{id: s.nextID, fn: fn}
	sub.active.Store(true)
	s.subs = append(s.subs, sub)
	current := s.value
	s.mu.Unlock()

	fn(current)
	return func() { s.unsubscribe(sub) }
}

// Publish stores v as the current value and delivers it to all subscribers.
func (s *Subject[T]) Publish(v T) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.value = v
	subs := make([]*subscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(v)
		}
	}
}

// Len reports the number of live subscribers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subject[T]) unsubscribe(target *subscriber[T]) {
	if !target.active.Swap(false) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == target.id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}
