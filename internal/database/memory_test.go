package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccounts(t *testing.T, db Repository, names ...string) []User {
	t.Helper()
	users := make([]User, 0, len(names))
	for _, name := range names {
		u, err := db.CreateAccount(context.Background(), CreateAccountParams{
			Username:     name,
			EmailAddress: name + "@example.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err, "failed to create account %q", name)
		users = append(users, u)
	}
	return users
}

func TestMemoryRepository_accounts(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryRepository()
	users := seedAccounts(t, db, "alice", "bob")

	_, err := db.CreateAccount(ctx, CreateAccountParams{Username: "alice2", EmailAddress: "alice@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail, "expected duplicate email to be rejected")

	got, err := db.GetAccountByEmail(ctx, "bob@example.com")
	assert.NoError(t, err)
	assert.Equal(t, users[1].Id, got.Id)
	assert.Equal(t, "hash", got.PasswordHash, "expected password hash to be returned for login")

	_, err = db.GetUser(ctx, 999)
	assert.ErrorIs(t, err, sql.ErrNoRows, "expected missing user to wrap sql.ErrNoRows")

	online := true
	assert.NoError(t, db.UpdateUser(ctx, users[0].Id, UserUpdate{IsOnline: &online}))
	u, err := db.GetUser(ctx, users[0].Id)
	assert.NoError(t, err)
	assert.True(t, u.IsOnline)
	assert.Nil(t, u.LastSeen, "expected last seen to be untouched")
	assert.Empty(t, u.PasswordHash, "expected password hash to be hidden")

	assert.NoError(t, db.ResetPresence(ctx))
	u, err = db.GetUser(ctx, users[0].Id)
	assert.NoError(t, err)
	assert.False(t, u.IsOnline, "expected presence to be reset")
	assert.NotNil(t, u.LastSeen, "expected reset to stamp a last seen time")
}

func TestMemoryRepository_messages(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryRepository()
	users := seedAccounts(t, db, "alice", "bob", "carol")
	alice, bob, carol := users[0].Id, users[1].Id, users[2].Id

	m1, err := db.CreateMessage(ctx, alice, bob, "one")
	require.NoError(t, err)
	m2, err := db.CreateMessage(ctx, bob, alice, "two")
	require.NoError(t, err)
	_, err = db.CreateMessage(ctx, carol, bob, "three")
	require.NoError(t, err)

	between, err := db.QueryMessages(ctx, MessageFilter{Between: [2]int{bob, alice}})
	assert.NoError(t, err)
	if assert.Len(t, between, 2) {
		assert.Equal(t, m1.Id, between[0].Id, "expected ascending order")
		assert.Equal(t, m2.Id, between[1].Id)
	}

	n, err := db.CountMessages(ctx, MessageFilter{ReceiverId: bob, Unread: true})
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	affected, err := db.UpdateMessages(ctx, MessageFilter{Ids: []int{m1.Id, 12345}}, MessageUpdate{MarkRead: true})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), affected, "expected unknown ids to be ignored")

	affected, err = db.UpdateMessages(ctx, MessageFilter{Ids: []int{}}, MessageUpdate{MarkRead: true})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), affected, "expected empty id set to match nothing")

	assert.NoError(t, db.UpdateMessage(ctx, m2.Id, MessageUpdate{DeleteByReceiver: true}))
	got, err := db.GetMessage(ctx, m2.Id)
	assert.NoError(t, err)
	assert.True(t, got.DeletedByReceiver)
	assert.False(t, got.DeletedBySender)
	assert.False(t, got.IsRead)

	_, err = db.GetMessage(ctx, 999)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	contacts, err := db.ListContacts(ctx, bob)
	assert.NoError(t, err)
	if assert.Len(t, contacts, 2) {
		assert.Equal(t, "alice", contacts[0].Username)
		assert.Equal(t, 0, contacts[0].UnreadCount, "expected read message to be excluded")
		assert.Equal(t, "carol", contacts[1].Username)
		assert.Equal(t, 1, contacts[1].UnreadCount)
	}
}

func TestMemoryRepository_orderingTiesBrokenById(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryRepository()
	fixed := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return fixed }

	for range 5 {
		_, err := db.CreateMessage(ctx, 1, 2, "same instant")
		require.NoError(t, err)
	}

	messages, err := db.QueryMessages(ctx, MessageFilter{Between: [2]int{1, 2}})
	assert.NoError(t, err)
	for i := 1; i < len(messages); i++ {
		assert.Less(t, messages[i-1].Id, messages[i].Id)
	}
}
