package stream

import (
	"context"
	"sync"
)

// Buffer sizes for the two kinds of traffic the server fans out.
const (
	FrameBuffer = 150 // ~3 seconds of 20ms PCM frames
	EventBuffer = 64
)

// Broadcaster fans out values from one source to N listeners.
type Broadcaster[T any] struct {
	buffer int

	mu        sync.RWMutex
	listeners map[*Listener[T]]struct{}
}

// Listener receives values from the broadcaster.
type Listener[T any] struct {
	C    chan T
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener[T]) Done() <-chan struct{} {
	return l.done
}

// NewBroadcaster creates a broadcaster whose listeners buffer up to buffer
// values before dropping.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = 1
	}
	return &Broadcaster[T]{
		buffer:    buffer,
		listeners: make(map[*Listener[T]]struct{}),
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster[T]) Subscribe() *Listener[T] {
	l := &Listener[T]{
		C:    make(chan T, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Unsubscribing
// twice is a no-op.
func (b *Broadcaster[T]) Unsubscribe(l *Listener[T]) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster[T]) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers v to every listener. Slow listeners get v dropped rather
// than blocking the broadcast.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- v:
		default:
		}
	}
}

// Run reads values from source and publishes them until ctx is cancelled
// or source is closed.
func (b *Broadcaster[T]) Run(ctx context.Context, source <-chan T) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-source:
			if !ok {
				return
			}
			b.Publish(v)
		}
	}
}
