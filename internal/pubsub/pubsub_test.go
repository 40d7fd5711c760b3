package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intEqual(a, b int) bool { return a == b }

func recvTimeout[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
		panic("unreachable")
	}
}

func assertNoValue[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestValueReplaysCurrent(t *testing.T) {
	v := NewValueWith(7, intEqual)

	ch, unsubscribe := v.Subscribe()
	defer unsubscribe()

	assert.Equal(t, 7, recvTimeout(t, ch))

	current, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, 7, current)
}

func TestValueEmptyDoesNotReplay(t *testing.T) {
	v := NewValue(intEqual)

	ch, unsubscribe := v.Subscribe()
	defer unsubscribe()

	assertNoValue(t, ch)

	v.Publish(1)
	assert.Equal(t, 1, recvTimeout(t, ch))
}

func TestValueDeduplicates(t *testing.T) {
	v := NewValueWith(1, intEqual)

	ch, unsubscribe := v.Subscribe()
	defer unsubscribe()
	assert.Equal(t, 1, recvTimeout(t, ch))

	v.Publish(1)
	assertNoValue(t, ch)

	v.Publish(2)
	assert.Equal(t, 2, recvTimeout(t, ch))
}

func TestValueSlowSubscriberDropsOldest(t *testing.T) {
	v := NewValue(intEqual)

	ch, unsubscribe := v.Subscribe()
	defer unsubscribe()

	// Overflow the buffer without draining. Publishers must not block.
	for i := 0; i < subscriberBuffer*3; i++ {
		v.Publish(i)
	}

	var last int
	for {
		select {
		case last = <-ch:
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer*3-1, last)
}

func TestValueUnsubscribeClosesChannel(t *testing.T) {
	v := NewValueWith(1, intEqual)

	ch, unsubscribe := v.Subscribe()
	recvTimeout(t, ch)
	unsubscribe()
	unsubscribe() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe reaches nobody but still updates.
	v.Publish(2)
	current, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, 2, current)
}

func TestTopicNoReplay(t *testing.T) {
	topic := NewTopic[string]()
	topic.Publish("before")

	ch, unsubscribe := topic.Subscribe()
	defer unsubscribe()

	assertNoValue(t, ch)

	topic.Publish("after")
	assert.Equal(t, "after", recvTimeout(t, ch))
}

func TestTopicFansOut(t *testing.T) {
	topic := NewTopic[int]()

	ch1, unsub1 := topic.Subscribe()
	defer unsub1()
	ch2, unsub2 := topic.Subscribe()
	defer unsub2()

	topic.Publish(42)
	assert.Equal(t, 42, recvTimeout(t, ch1))
	assert.Equal(t, 42, recvTimeout(t, ch2))
}

func TestTopicClose(t *testing.T) {
	topic := NewTopic[int]()
	ch, _ := topic.Subscribe()

	topic.Close()
	_, open := <-ch
	assert.False(t, open)
}
