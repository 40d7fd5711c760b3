// Package pubsub provides the in-process publish/subscribe primitives the
// kit exposes sync state and account snapshots through: Value replays and
// deduplicates a current value, Topic fans out transient events.
package pubsub

import (
	"sync"
)

// subscriberBuffer is the channel capacity handed to each subscriber. A
// subscriber that falls further behind than this drops intermediate values
// rather than blocking publishers.
const subscriberBuffer = 16

// Value is a concurrency-safe observable holding a current value of type T.
// New subscribers immediately receive the current value; subsequent
// publishes are delivered only when they differ from the previous value
// under the equality function.
type Value[T any] struct {
	mu          sync.Mutex
	current     T
	hasValue    bool
	equal       func(a, b T) bool
	subscribers map[chan T]struct{}
}

// NewValue returns an empty observable. equal may be nil, in which case
// every published value is delivered.
func NewValue[T any](equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		equal:       equal,
		subscribers: make(map[chan T]struct{}),
	}
}

// NewValueWith returns an observable seeded with initial.
func NewValueWith[T any](initial T, equal func(a, b T) bool) *Value[T] {
	v := NewValue(equal)
	v.current = initial
	v.hasValue = true
	return v
}

// Get returns the current value and whether one has been published.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.hasValue
}

// Publish sets the current value and notifies subscribers. A value equal to
// the current one is a no-op: subscribers are not re-notified.
func (v *Value[T]) Publish(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.hasValue && v.equal != nil && v.equal(v.current, value) {
		return
	}
	v.current = value
	v.hasValue = true

	for ch := range v.subscribers {
		send(ch, value)
	}
}

// Subscribe registers a new subscriber and returns its channel together
// with an unsubscribe function. If a current value exists it is delivered
// first. The channel is closed on unsubscribe.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, subscriberBuffer)
	v.subscribers[ch] = struct{}{}
	if v.hasValue {
		ch <- v.current
	}

	unsubscribe := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subscribers[ch]; ok {
			delete(v.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Close unsubscribes everyone. Further publishes update the value but reach
// no subscribers.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ch := range v.subscribers {
		close(ch)
	}
	v.subscribers = make(map[chan T]struct{})
}

// send delivers without blocking: when the subscriber's buffer is full, the
// oldest buffered value is discarded in favor of the new one.
func send[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
