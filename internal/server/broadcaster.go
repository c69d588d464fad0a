package server

import (
	"log"
	"strconv"
	"sync"

	"github.com/npezzotti/go-dmchat/internal/messaging"
)

const presenceGroup = "presence"

func userGroup(userId int) string {
	return "user_" + strconv.Itoa(userId)
}

func chatGroup(k messaging.Key) string {
	return "chat_" + k.String()
}

// Subscriber is a live connection that can receive events.
type Subscriber interface {
	// Deliver queues ev without blocking. It returns false when the
	// subscriber is closed or its queue is full.
	Deliver(ev Event) bool
	// Stop asks the subscriber to tear itself down. It must be idempotent.
	Stop()
}

type group struct {
	mu      sync.RWMutex
	members map[Subscriber]struct{}
	// dead is set once the group has been removed from the broadcaster;
	// subscribers that raced with the removal retry on a fresh group.
	dead bool
}

// Broadcaster fans events out to named groups of subscribers. Each group
// has its own lock.
type Broadcaster struct {
	log    *log.Logger
	groups sync.Map // string -> *group
}

func NewBroadcaster(logger *log.Logger) *Broadcaster {
	return &Broadcaster{log: logger}
}

func (b *Broadcaster) Subscribe(name string, sub Subscriber) {
	for {
		v, _ := b.groups.LoadOrStore(name, &group{members: make(map[Subscriber]struct{})})
		g := v.(*group)

		g.mu.Lock()
		if g.dead {
			g.mu.Unlock()
			continue
		}
		g.members[sub] = struct{}{}
		g.mu.Unlock()
		return
	}
}

// Unsubscribe removes sub from the group. Removing an absent subscriber is
// a no-op. The group is dropped once it is empty.
func (b *Broadcaster) Unsubscribe(name string, sub Subscriber) {
	v, ok := b.groups.Load(name)
	if !ok {
		return
	}
	g := v.(*group)

	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.members, sub)
	if len(g.members) == 0 && !g.dead {
		g.dead = true
		b.groups.CompareAndDelete(name, g)
	}
}

// Publish delivers ev to a snapshot of the group's members and returns the
// number of successful deliveries. A member that cannot accept the event
// is stopped rather than waited on.
func (b *Broadcaster) Publish(name string, ev Event) int {
	v, ok := b.groups.Load(name)
	if !ok {
		return 0
	}
	g := v.(*group)

	g.mu.RLock()
	members := make([]Subscriber, 0, len(g.members))
	for sub := range g.members {
		members = append(members, sub)
	}
	g.mu.RUnlock()

	delivered := 0
	for _, sub := range members {
		if sub.Deliver(ev) {
			delivered++
			continue
		}
		b.log.Printf("broadcast %s to %q: subscriber unavailable, stopping it", ev.EventType(), name)
		sub.Stop()
	}
	return delivered
}

// Members returns the current size of a group.
func (b *Broadcaster) Members(name string) int {
	v, ok := b.groups.Load(name)
	if !ok {
		return 0
	}
	g := v.(*group)

	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

func (b *Broadcaster) NumGroups() int {
	n := 0
	b.groups.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
