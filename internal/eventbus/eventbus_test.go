package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribersInOrder(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var got []string
	b.Subscribe(EventNotification, func(e DomainEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(NotificationEvent).Message)
	})

	for _, msg := range []string{"one", "two", "three"} {
		b.Publish(NotificationEvent{Message: msg})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	var first, second atomic.Int32
	unsubscribe := b.Subscribe(EventNotification, func(DomainEvent) { first.Add(1) })
	b.Subscribe(EventNotification, func(DomainEvent) { second.Add(1) })

	unsubscribe()
	b.Publish(NotificationEvent{Message: "hello"})

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	b := New()
	defer b.Close()

	var delivered atomic.Int32
	b.Subscribe(EventNotification, func(DomainEvent) { panic("boom") })
	b.Subscribe(EventNotification, func(DomainEvent) { delivered.Add(1) })

	b.Publish(NotificationEvent{Message: "a"})
	b.Publish(NotificationEvent{Message: "b"})

	require.Eventually(t, func() bool { return delivered.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New()

	var delivered atomic.Int32
	b.Subscribe(EventNotification, func(DomainEvent) { delivered.Add(1) })
	b.Close()

	b.Publish(NotificationEvent{Message: "late"})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(0), delivered.Load())
}
