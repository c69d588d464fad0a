package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepository is a Repository held entirely in memory. It is used for
// local development (dsn "memory") and by tests that need real store semantics.
type MemoryRepository struct {
	mu        sync.RWMutex
	accounts  map[int]User
	messages  map[int]Message
	nextAccId int
	nextMsgId int
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[int]User),
		messages: make(map[int]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (db *MemoryRepository) Ping() error {
	return nil
}

func (db *MemoryRepository) CreateAccount(_ context.Context, params CreateAccountParams) (User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.accounts {
		if strings.EqualFold(u.EmailAddress, params.EmailAddress) {
			return User{}, fmt.Errorf("create account %q: %w", params.EmailAddress, ErrDuplicateEmail)
		}
	}

	db.nextAccId++
	now := db.now()
	u := User{
		Id:           db.nextAccId,
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	db.accounts[u.Id] = u

	u.PasswordHash = ""
	return u, nil
}

func (db *MemoryRepository) GetAccountByEmail(_ context.Context, email string) (User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.accounts {
		if u.EmailAddress == email {
			return copyUser(u), nil
		}
	}
	return User{}, fmt.Errorf("get account by email: %w", sql.ErrNoRows)
}

func (db *MemoryRepository) GetUser(_ context.Context, id int) (User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.accounts[id]
	if !ok {
		return User{}, fmt.Errorf("get user %d: %w", id, sql.ErrNoRows)
	}
	u = copyUser(u)
	u.PasswordHash = ""
	return u, nil
}

func (db *MemoryRepository) UpdateUser(_ context.Context, id int, update UserUpdate) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.accounts[id]
	if !ok {
		return nil
	}
	if update.IsOnline != nil {
		u.IsOnline = *update.IsOnline
	}
	if update.LastSeen != nil {
		ls := update.LastSeen.UTC()
		u.LastSeen = &ls
	}
	u.UpdatedAt = db.now()
	db.accounts[id] = u
	return nil
}

func (db *MemoryRepository) ResetPresence(_ context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now()
	for id, u := range db.accounts {
		if !u.IsOnline {
			continue
		}
		u.IsOnline = false
		if u.LastSeen == nil {
			u.LastSeen = &now
		}
		db.accounts[id] = u
	}
	return nil
}

func (db *MemoryRepository) ListContacts(_ context.Context, viewerId int) ([]Contact, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	unread := make(map[int]int)
	for _, m := range db.messages {
		if m.ReceiverId == viewerId && !m.IsRead {
			unread[m.SenderId]++
		}
	}

	contacts := make([]Contact, 0, len(db.accounts))
	for id, u := range db.accounts {
		if id == viewerId {
			continue
		}
		u = copyUser(u)
		u.PasswordHash = ""
		contacts = append(contacts, Contact{User: u, UnreadCount: unread[id]})
	}

	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].Username == contacts[j].Username {
			return contacts[i].Id < contacts[j].Id
		}
		return contacts[i].Username < contacts[j].Username
	})
	return contacts, nil
}

func (db *MemoryRepository) CreateMessage(_ context.Context, senderId, receiverId int, content string) (Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.nextMsgId++
	m := Message{
		Id:         db.nextMsgId,
		SenderId:   senderId,
		ReceiverId: receiverId,
		Content:    content,
		CreatedAt:  db.now(),
	}
	db.messages[m.Id] = m
	return m, nil
}

func (db *MemoryRepository) GetMessage(_ context.Context, id int) (Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.messages[id]
	if !ok {
		return Message{}, fmt.Errorf("get message %d: %w", id, sql.ErrNoRows)
	}
	return m, nil
}

func (db *MemoryRepository) UpdateMessage(ctx context.Context, id int, update MessageUpdate) error {
	_, err := db.UpdateMessages(ctx, MessageFilter{Ids: []int{id}}, update)
	return err
}

func (db *MemoryRepository) UpdateMessages(_ context.Context, filter MessageFilter, update MessageUpdate) (int64, error) {
	if update.empty() {
		return 0, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	var n int64
	for id, m := range db.messages {
		if !filter.matches(m) {
			continue
		}
		m.IsRead = m.IsRead || update.MarkRead
		m.IsDeleted = m.IsDeleted || update.DeleteForEveryone
		m.DeletedBySender = m.DeletedBySender || update.DeleteBySender
		m.DeletedByReceiver = m.DeletedByReceiver || update.DeleteByReceiver
		db.messages[id] = m
		n++
	}
	return n, nil
}

func (db *MemoryRepository) QueryMessages(_ context.Context, filter MessageFilter) ([]Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	messages := make([]Message, 0)
	for _, m := range db.messages {
		if filter.matches(m) {
			messages = append(messages, m)
		}
	}

	slices.SortFunc(messages, func(a, b Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.Id - b.Id
	})
	return messages, nil
}

func (db *MemoryRepository) CountMessages(_ context.Context, filter MessageFilter) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int
	for _, m := range db.messages {
		if filter.matches(m) {
			n++
		}
	}
	return n, nil
}

func copyUser(u User) User {
	if u.LastSeen != nil {
		ls := *u.LastSeen
		u.LastSeen = &ls
	}
	return u
}
