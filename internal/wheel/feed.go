package wheel

import (
	"sync"
	"sync/atomic"
)

// Feed delivers values from one publisher to any number of subscribers.
// Delivery is synchronous, on the publisher's goroutine, in subscription order.
type Feed[T any] struct {
	mu   sync.Mutex
	subs []*Subscription[T]
}

// Subscription is a registered feed callback.
type Subscription[T any] struct {
	feed   *Feed[T]
	fn     func(T)
	active atomic.Bool
}

// Subscribe registers fn. It receives every value published after this call
// until the subscription is cancelled.
func (f *Feed[T]) Subscribe(fn func(T)) *Subscription[T] {
	s := &Subscription[T]{feed: f, fn: fn}
	s.active.Store(true)
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return s
}

// Unsubscribe removes the subscription. It may be called from inside the
// callback itself; once it returns the callback is not invoked again, even
// for a publish that is already in progress. Calling it twice is a no-op.
func (s *Subscription[T]) Unsubscribe() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	f := s.feed
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if sub == s {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

// Publish hands v to every active subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	subs := make([]*Subscription[T], len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		if s.active.Load() {
			s.fn(v)
		}
	}
}

// Len returns the number of active subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
