package server

import (
	"context"
	"strings"

	"github.com/npezzotti/go-dmchat/internal/messaging"
	"github.com/npezzotti/go-dmchat/internal/presence"
	"github.com/npezzotti/go-dmchat/internal/stats"
)

// presenceSession backs /ws/presence. It only pushes events to the client.
type presenceSession struct{}

func (presenceSession) acceptsInput() bool { return false }

func (presenceSession) open(c *Client) error {
	cs := c.chatServer
	cs.broadcaster.Subscribe(presenceGroup, c)
	cs.broadcaster.Subscribe(userGroup(c.user.Id), c)

	_, err := cs.presence.Connect(c.ctx, c.user.Id, func(st presence.Status) {
		cs.broadcaster.Publish(presenceGroup, NewPresenceUpdate(st))
	})
	if err != nil {
		c.log.Printf("client %s: %v", c.id, err)
	}
	return nil
}

func (presenceSession) dispatch(*Client, clientEvent) error {
	return nil
}

func (presenceSession) close(ctx context.Context, c *Client) {
	cs := c.chatServer
	cs.broadcaster.Unsubscribe(presenceGroup, c)
	cs.broadcaster.Unsubscribe(userGroup(c.user.Id), c)

	_, err := cs.presence.Disconnect(ctx, c.user.Id, func(st presence.Status) {
		if st.Transitioned {
			cs.broadcaster.Publish(presenceGroup, NewPresenceUpdate(st))
		}
	})
	if err != nil {
		c.log.Printf("client %s: %v", c.id, err)
	}
}

// conversationSession backs /ws/chat/{room} for one of the room's two
// participants.
type conversationSession struct {
	roomName string
	key      messaging.Key
	other    int
}

func newConversationSession(roomName string) *conversationSession {
	return &conversationSession{roomName: roomName}
}

func (s *conversationSession) acceptsInput() bool { return true }

func (s *conversationSession) open(c *Client) error {
	key, err := messaging.ParseConversationKey(s.roomName)
	if err != nil {
		return errPolicy(messaging.ErrInvalidKey.Error())
	}

	other, ok := key.Other(c.user.Id)
	if !ok {
		return errPolicy("not a participant of this conversation")
	}

	s.key = key
	s.other = other
	c.chatServer.broadcaster.Subscribe(chatGroup(key), c)
	return nil
}

func (s *conversationSession) close(_ context.Context, c *Client) {
	c.chatServer.broadcaster.Unsubscribe(chatGroup(s.key), c)
}

func (s *conversationSession) dispatch(c *Client, ev clientEvent) error {
	switch ev := ev.(type) {
	case sendMessage:
		return s.sendMessage(c, ev)
	case deleteMessage:
		s.deleteMessage(c, ev)
	case readReceipt:
		s.readReceipt(c, ev)
	}
	return nil
}

func (s *conversationSession) sendMessage(c *Client, ev sendMessage) error {
	content := strings.TrimSpace(ev.Content)
	if content == "" {
		return nil
	}
	if ev.ReceiverId != 0 && ev.ReceiverId != s.other {
		return errPolicy("receiver is not part of this conversation")
	}

	cs := c.chatServer
	msg, err := cs.engine.Send(c.ctx, c.user.Id, s.other, content)
	if err != nil {
		c.log.Printf("client %s: %v", c.id, err)
		return nil
	}
	cs.stats.Incr(stats.NumMessagesSent)

	cs.broadcaster.Publish(chatGroup(s.key), &ChatMessage{
		Type:           TypeMessage,
		Message:        msg.Content,
		SenderId:       msg.SenderId,
		SenderUsername: c.user.Username,
		Timestamp:      msg.CreatedAt,
		MessageId:      msg.Id,
		IsRead:         msg.IsRead,
	})

	if err := cs.PublishUnreadCount(c.ctx, c.user.Id, s.other); err != nil {
		c.log.Printf("client %s: %v", c.id, err)
	}
	return nil
}

func (s *conversationSession) deleteMessage(c *Client, ev deleteMessage) {
	cs := c.chatServer
	ok, err := cs.engine.DeleteIn(c.ctx, s.key, ev.MessageId, c.user.Id, ev.Mode)
	if err != nil {
		c.log.Printf("client %s: %v", c.id, err)
		return
	}
	if !ok {
		return
	}

	deleted := NewMessageDeleted(ev.MessageId, ev.Mode)
	if ev.Mode == messaging.DeleteForEveryone {
		cs.broadcaster.Publish(chatGroup(s.key), deleted)
		return
	}
	if !c.Deliver(deleted) {
		c.Stop()
	}
}

func (s *conversationSession) readReceipt(c *Client, ev readReceipt) {
	cs := c.chatServer
	if err := cs.engine.MarkReadFrom(c.ctx, s.other, c.user.Id, ev.MessageIds); err != nil {
		c.log.Printf("client %s: %v", c.id, err)
		return
	}

	cs.broadcaster.Publish(chatGroup(s.key), NewReadReceipt(ev.MessageIds))

	if err := cs.PublishUnreadCount(c.ctx, s.other, c.user.Id); err != nil {
		c.log.Printf("client %s: %v", c.id, err)
	}
}
