package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/npezzotti/go-dmchat/internal/messaging"
	"github.com/npezzotti/go-dmchat/internal/testutil"
	"github.com/stretchr/testify/assert"
)

// fakeSubscriber records deliveries. A full subscriber refuses every event.
type fakeSubscriber struct {
	mu        sync.Mutex
	events    []Event
	full      bool
	stopped   atomic.Int32
	onDeliver func()
}

func (f *fakeSubscriber) Deliver(ev Event) bool {
	if f.onDeliver != nil {
		f.onDeliver()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeSubscriber) Stop() {
	f.stopped.Add(1)
}

func (f *fakeSubscriber) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func TestGroupNames(t *testing.T) {
	assert.Equal(t, "user_9", userGroup(9))
	assert.Equal(t, "chat_5_9", chatGroup(messaging.ConversationKey(9, 5)))
}

func TestBroadcaster_SubscribePublish(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))
	a, c, other := &fakeSubscriber{}, &fakeSubscriber{}, &fakeSubscriber{}

	b.Subscribe("chat_5_9", a)
	b.Subscribe("chat_5_9", c)
	b.Subscribe("chat_5_9", c)
	b.Subscribe("user_9", other)

	assert.Equal(t, 2, b.Members("chat_5_9"), "expected duplicate subscribe to be idempotent")
	assert.Equal(t, 2, b.NumGroups())

	n := b.Publish("chat_5_9", NewReadReceipt([]int{1}))
	assert.Equal(t, 2, n)
	assert.Len(t, a.received(), 1)
	assert.Len(t, c.received(), 1)
	assert.Empty(t, other.received(), "expected groups to be isolated")

	assert.Equal(t, 0, b.Publish("nobody", NewReadReceipt(nil)), "expected publish to unknown group to be a no-op")
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))
	a, c := &fakeSubscriber{}, &fakeSubscriber{}

	b.Unsubscribe("presence", a)
	assert.Equal(t, 0, b.NumGroups(), "expected unsubscribe of absent member to be a no-op")

	b.Subscribe("presence", a)
	b.Subscribe("presence", c)
	b.Unsubscribe("presence", c)
	b.Unsubscribe("presence", c)
	assert.Equal(t, 1, b.Members("presence"))

	b.Publish("presence", NewReadReceipt(nil))
	assert.Len(t, a.received(), 1)
	assert.Empty(t, c.received(), "expected unsubscribed member to receive nothing")

	b.Unsubscribe("presence", a)
	assert.Equal(t, 0, b.NumGroups(), "expected empty group to be dropped")

	b.Subscribe("presence", c)
	assert.Equal(t, 1, b.Members("presence"), "expected group to be recreated")
}

func TestBroadcaster_slowSubscriberIsStopped(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))
	healthy, full := &fakeSubscriber{}, &fakeSubscriber{full: true}
	b.Subscribe("chat_1_2", healthy)
	b.Subscribe("chat_1_2", full)

	done := make(chan int)
	go func() {
		done <- b.Publish("chat_1_2", NewReadReceipt([]int{7}))
	}()

	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("expected publish not to block on a full subscriber")
	}

	assert.Len(t, healthy.received(), 1, "expected healthy subscriber to be unaffected")
	assert.Equal(t, int32(1), full.stopped.Load(), "expected full subscriber to be asked to stop")
}

func TestBroadcaster_publishUsesSnapshot(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))
	late := &fakeSubscriber{}
	first := &fakeSubscriber{}
	first.onDeliver = func() {
		// subscribing during a publish must not deadlock or join this publish
		b.Subscribe("presence", late)
	}
	b.Subscribe("presence", first)

	assert.Equal(t, 1, b.Publish("presence", NewReadReceipt(nil)))
	assert.Empty(t, late.received())
	assert.Equal(t, 2, b.Members("presence"))
}

func TestBroadcaster_fifoPerSubscriber(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))
	sub := &fakeSubscriber{}
	b.Subscribe("chat_1_2", sub)

	for i := range 100 {
		b.Publish("chat_1_2", NewReadReceipt([]int{i}))
	}

	events := sub.received()
	if assert.Len(t, events, 100) {
		for i, ev := range events {
			assert.Equal(t, []int{i}, ev.(*ReadReceipt).MessageIds)
		}
	}
}

func TestBroadcaster_concurrentChurn(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := &fakeSubscriber{}
			name := fmt.Sprintf("chat_%d_%d", i%3, 100)
			for range 50 {
				b.Subscribe(name, sub)
				b.Publish(name, NewReadReceipt(nil))
				b.Unsubscribe(name, sub)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, b.NumGroups(), "expected every group to be dropped once empty")
}
