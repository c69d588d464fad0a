// Package messaging implements the direct message lifecycle: sending, read
// receipts, deletion, unread counters and per-viewer history.
package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/npezzotti/go-dmchat/internal/database"
)

var (
	ErrEmptyMessage = errors.New("message content is empty")
	ErrSelfMessage  = errors.New("sender and receiver are the same user")
)

type DeleteMode string

const (
	DeleteForEveryone DeleteMode = "for_everyone"
	DeleteForMe       DeleteMode = "for_me"
)

func (m DeleteMode) Valid() bool {
	return m == DeleteForEveryone || m == DeleteForMe
}

// HistoryEntry is a message annotated for the viewer that requested it.
type HistoryEntry struct {
	database.Message
	IsMine bool
}

type Engine struct {
	log *log.Logger
	db  database.Repository
}

func NewEngine(logger *log.Logger, db database.Repository) *Engine {
	return &Engine{
		log: logger,
		db:  db,
	}
}

// Send persists a new unread message. Content is trimmed before it is stored.
func (e *Engine) Send(ctx context.Context, senderId, receiverId int, content string) (database.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return database.Message{}, ErrEmptyMessage
	}
	if senderId == receiverId {
		return database.Message{}, ErrSelfMessage
	}

	msg, err := e.db.CreateMessage(ctx, senderId, receiverId, content)
	if err != nil {
		return database.Message{}, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// MarkRead marks every listed message as read. Unknown ids are ignored and
// already read messages stay read.
func (e *Engine) MarkRead(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	return e.markRead(ctx, database.MessageFilter{Ids: ids})
}

// MarkReadFrom is MarkRead restricted to messages senderId sent to
// readerId. Other listed ids are left untouched.
func (e *Engine) MarkReadFrom(ctx context.Context, senderId, readerId int, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	return e.markRead(ctx, database.MessageFilter{Ids: ids, SenderId: senderId, ReceiverId: readerId})
}

func (e *Engine) markRead(ctx context.Context, filter database.MessageFilter) error {
	if _, err := e.db.UpdateMessages(ctx, filter, database.MessageUpdate{MarkRead: true}); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// Delete applies a deletion on behalf of requesterId. It returns false when
// the message does not exist or the requester may not delete it that way.
// Only the sender may delete for everyone; either participant may delete
// for themselves.
func (e *Engine) Delete(ctx context.Context, messageId, requesterId int, mode DeleteMode) (bool, error) {
	return e.delete(ctx, nil, messageId, requesterId, mode)
}

// DeleteIn is Delete restricted to messages of the conversation key. A
// message from another conversation is treated as not found.
func (e *Engine) DeleteIn(ctx context.Context, key Key, messageId, requesterId int, mode DeleteMode) (bool, error) {
	return e.delete(ctx, &key, messageId, requesterId, mode)
}

func (e *Engine) delete(ctx context.Context, key *Key, messageId, requesterId int, mode DeleteMode) (bool, error) {
	msg, err := e.db.GetMessage(ctx, messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("delete message: %w", err)
	}
	if key != nil && !(key.Has(msg.SenderId) && key.Has(msg.ReceiverId)) {
		e.log.Printf("delete message %d: not in conversation %s", messageId, key)
		return false, nil
	}

	var update database.MessageUpdate
	switch {
	case mode == DeleteForEveryone && requesterId == msg.SenderId:
		update.DeleteForEveryone = true
	case mode == DeleteForMe && requesterId == msg.SenderId:
		update.DeleteBySender = true
	case mode == DeleteForMe && requesterId == msg.ReceiverId:
		update.DeleteByReceiver = true
	default:
		e.log.Printf("delete message %d: user %d not allowed to delete %s", messageId, requesterId, mode)
		return false, nil
	}

	if err := e.db.UpdateMessage(ctx, messageId, update); err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return true, nil
}

// UnreadCount counts messages from senderId that receiverId has not read.
// Deleted messages are included.
func (e *Engine) UnreadCount(ctx context.Context, senderId, receiverId int) (int, error) {
	n, err := e.db.CountMessages(ctx, database.MessageFilter{
		SenderId:   senderId,
		ReceiverId: receiverId,
		Unread:     true,
	})
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// ConversationHistory returns the messages between userA and userB that are
// visible to viewerId, oldest first.
func (e *Engine) ConversationHistory(ctx context.Context, userA, userB, viewerId int) ([]HistoryEntry, error) {
	messages, err := e.db.QueryMessages(ctx, database.MessageFilter{Between: [2]int{userA, userB}})
	if err != nil {
		return nil, fmt.Errorf("conversation history: %w", err)
	}

	history := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		if VisibilityFor(m, viewerId) != Visible {
			continue
		}
		history = append(history, HistoryEntry{
			Message: m,
			IsMine:  m.SenderId == viewerId,
		})
	}
	return history, nil
}

// OpenConversation marks otherId's unread messages to viewerId as read and
// returns the viewer's history.
func (e *Engine) OpenConversation(ctx context.Context, viewerId, otherId int) ([]HistoryEntry, error) {
	_, err := e.db.UpdateMessages(ctx,
		database.MessageFilter{SenderId: otherId, ReceiverId: viewerId, Unread: true},
		database.MessageUpdate{MarkRead: true},
	)
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}

	return e.ConversationHistory(ctx, viewerId, otherId, viewerId)
}

// CountDisplay renders an unread counter, capped at "99+".
func CountDisplay(n int) string {
	if n > 99 {
		return "99+"
	}
	return strconv.Itoa(n)
}
