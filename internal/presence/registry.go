// Package presence tracks which users have at least one open connection and
// mirrors the online flag and last seen time into the store.
package presence

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/npezzotti/go-dmchat/internal/database"
)

// Store is the part of the repository the registry writes to.
type Store interface {
	UpdateUser(ctx context.Context, id int, update database.UserUpdate) error
}

// Status is a user's presence after a Connect or Disconnect.
type Status struct {
	UserId   int
	Online   bool
	LastSeen *time.Time
	Display  string
	// Transitioned is true when the call flipped the user between
	// offline and online.
	Transitioned bool
}

type userState struct {
	mu    sync.Mutex
	conns int
	// refs counts Connect and Disconnect calls holding this state. It is
	// guarded by Registry.mu.
	refs int
}

type Registry struct {
	log   *log.Logger
	store Store
	loc   *time.Location
	now   func() time.Time

	mu    sync.Mutex
	users map[int]*userState
}

func NewRegistry(logger *log.Logger, store Store, loc *time.Location) *Registry {
	if loc == nil {
		loc = time.Local
	}
	return &Registry{
		log:   logger,
		store: store,
		loc:   loc,
		now:   time.Now,
		users: make(map[int]*userState),
	}
}

func (r *Registry) acquire(id int) *userState {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		u = &userState{}
		r.users[id] = u
	}
	u.refs++
	return u
}

// release drops the state of a user with no connections once nobody else
// is using it.
func (r *Registry) release(id int, u *userState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u.refs--
	if u.refs == 0 && u.conns == 0 {
		delete(r.users, id)
	}
}

// Connect records a new connection for userId. The store is only written on
// the user's first connection. notify, if not nil, receives the resulting
// status before any later Connect or Disconnect for the same user can run.
// The returned status is valid even when the store write fails.
func (r *Registry) Connect(ctx context.Context, userId int, notify func(Status)) (Status, error) {
	u := r.acquire(userId)
	defer r.release(userId, u)
	u.mu.Lock()
	defer u.mu.Unlock()

	u.conns++
	st := Status{
		UserId:       userId,
		Online:       true,
		Display:      DisplayOnline,
		Transitioned: u.conns == 1,
	}

	var err error
	if st.Transitioned {
		online := true
		if err = r.store.UpdateUser(ctx, userId, database.UserUpdate{IsOnline: &online}); err != nil {
			err = fmt.Errorf("mark user %d online: %w", userId, err)
		}
	}
	if notify != nil {
		notify(st)
	}
	return st, err
}

// Disconnect releases one connection for userId. Only the release of the
// last connection marks the user offline and stamps the last seen time.
// notify behaves as in Connect.
func (r *Registry) Disconnect(ctx context.Context, userId int, notify func(Status)) (Status, error) {
	u := r.acquire(userId)
	defer r.release(userId, u)
	u.mu.Lock()
	defer u.mu.Unlock()

	st, err := r.disconnect(ctx, u, userId)
	if notify != nil {
		notify(st)
	}
	return st, err
}

func (r *Registry) disconnect(ctx context.Context, u *userState, userId int) (Status, error) {
	switch {
	case u.conns == 0:
		r.log.Printf("presence: disconnect without connect for user %d", userId)
		return Status{UserId: userId, Display: DisplayOffline}, nil
	case u.conns > 1:
		u.conns--
		return Status{UserId: userId, Online: true, Display: DisplayOnline}, nil
	}

	u.conns = 0
	now := r.now().UTC()
	st := Status{
		UserId:       userId,
		Online:       false,
		LastSeen:     &now,
		Display:      LastSeenDisplay(false, &now, now, r.loc),
		Transitioned: true,
	}

	offline := false
	if err := r.store.UpdateUser(ctx, userId, database.UserUpdate{IsOnline: &offline, LastSeen: &now}); err != nil {
		return st, fmt.Errorf("mark user %d offline: %w", userId, err)
	}
	return st, nil
}

// Online reports whether userId has at least one open connection.
func (r *Registry) Online(userId int) bool {
	r.mu.Lock()
	u, ok := r.users[userId]
	r.mu.Unlock()
	if !ok {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conns > 0
}

// OnlineUsers returns the ids of every connected user in ascending order.
func (r *Registry) OnlineUsers() []int {
	r.mu.Lock()
	states := make(map[int]*userState, len(r.users))
	for id, u := range r.users {
		states[id] = u
	}
	r.mu.Unlock()

	ids := make([]int, 0)
	for id, u := range states {
		u.mu.Lock()
		if u.conns > 0 {
			ids = append(ids, id)
		}
		u.mu.Unlock()
	}
	slices.Sort(ids)
	return ids
}

// Display renders a stored presence using the registry's clock and location.
func (r *Registry) Display(online bool, lastSeen *time.Time) string {
	return LastSeenDisplay(online, lastSeen, r.now(), r.loc)
}
