package pubsub

import (
	"sync"
)

// Topic fans out transient events of type T to all current subscribers.
// Unlike Value it keeps no current value and never replays: a subscriber
// only sees events published after it subscribed.
type Topic[T any] struct {
	mu          sync.Mutex
	subscribers map[chan T]struct{}
}

func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{
		subscribers: make(map[chan T]struct{}),
	}
}

// Publish delivers event to every subscriber without blocking; slow
// subscribers lose their oldest buffered events.
func (t *Topic[T]) Publish(event T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.subscribers {
		send(ch, event)
	}
}

// Subscribe registers a subscriber and returns its channel and an
// unsubscribe function. The channel is closed on unsubscribe.
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan T, subscriberBuffer)
	t.subscribers[ch] = struct{}{}

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.subscribers[ch]; ok {
			delete(t.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Close unsubscribes everyone.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.subscribers {
		close(ch)
	}
	t.subscribers = make(map[chan T]struct{})
}
