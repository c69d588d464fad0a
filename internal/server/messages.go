package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-dmchat/internal/messaging"
	"github.com/npezzotti/go-dmchat/internal/presence"
)

type EventType string

const (
	TypePresenceUpdate    EventType = "presence_update"
	TypeUnreadCountUpdate EventType = "unread_count_update"
	TypeMessage           EventType = "message"
	TypeReadReceipt       EventType = "read_receipt"
	TypeDeleteMessage     EventType = "delete_message"
	TypeMessageDeleted    EventType = "message_deleted"
)

// Event is a message sent from the server to a client. The set of events
// is closed: only the types in this file implement it.
type Event interface {
	EventType() EventType
	event()
}

type PresenceUpdate struct {
	Type            EventType  `json:"type"`
	UserId          int        `json:"user_id"`
	IsOnline        bool       `json:"is_online"`
	LastSeenDisplay string     `json:"last_seen_display"`
	LastSeenISO     *time.Time `json:"last_seen_iso"`
}

func NewPresenceUpdate(st presence.Status) *PresenceUpdate {
	ev := &PresenceUpdate{
		Type:            TypePresenceUpdate,
		UserId:          st.UserId,
		IsOnline:        st.Online,
		LastSeenDisplay: st.Display,
	}
	if !st.Online {
		ev.LastSeenISO = st.LastSeen
	}
	return ev
}

type UnreadCountUpdate struct {
	Type         EventType `json:"type"`
	SenderId     int       `json:"sender_id"`
	Count        int       `json:"count"`
	CountDisplay string    `json:"count_display"`
}

func NewUnreadCountUpdate(senderId, count int) *UnreadCountUpdate {
	return &UnreadCountUpdate{
		Type:         TypeUnreadCountUpdate,
		SenderId:     senderId,
		Count:        count,
		CountDisplay: messaging.CountDisplay(count),
	}
}

type ChatMessage struct {
	Type           EventType `json:"type"`
	Message        string    `json:"message"`
	SenderId       int       `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Timestamp      time.Time `json:"timestamp"`
	MessageId      int       `json:"message_id"`
	IsRead         bool      `json:"is_read"`
}

type ReadReceipt struct {
	Type       EventType `json:"type"`
	MessageIds []int     `json:"message_ids"`
}

func NewReadReceipt(ids []int) *ReadReceipt {
	if ids == nil {
		ids = []int{}
	}
	return &ReadReceipt{Type: TypeReadReceipt, MessageIds: ids}
}

type MessageDeleted struct {
	Type       EventType            `json:"type"`
	MessageId  int                  `json:"message_id"`
	DeleteType messaging.DeleteMode `json:"delete_type"`
}

func NewMessageDeleted(messageId int, mode messaging.DeleteMode) *MessageDeleted {
	return &MessageDeleted{Type: TypeMessageDeleted, MessageId: messageId, DeleteType: mode}
}

func (e *PresenceUpdate) EventType() EventType    { return TypePresenceUpdate }
func (e *UnreadCountUpdate) EventType() EventType { return TypeUnreadCountUpdate }
func (e *ChatMessage) EventType() EventType       { return TypeMessage }
func (e *ReadReceipt) EventType() EventType       { return TypeReadReceipt }
func (e *MessageDeleted) EventType() EventType    { return TypeMessageDeleted }

func (*PresenceUpdate) event()    {}
func (*UnreadCountUpdate) event() {}
func (*ChatMessage) event()       {}
func (*ReadReceipt) event()       {}
func (*MessageDeleted) event()    {}

func serializeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// ClientMessage is the wire form of every client to server frame. Only the
// fields of the named type are meaningful.
type ClientMessage struct {
	Type       EventType            `json:"type"`
	Message    string               `json:"message,omitempty"`
	ReceiverId int                  `json:"receiver_id,omitempty"`
	MessageId  int                  `json:"message_id,omitempty"`
	DeleteType messaging.DeleteMode `json:"delete_type,omitempty"`
	MessageIds []int                `json:"message_ids,omitempty"`
}

// clientEvent is a decoded client frame.
type clientEvent interface {
	clientEvent()
}

type sendMessage struct {
	Content    string
	ReceiverId int
}

type deleteMessage struct {
	MessageId int
	Mode      messaging.DeleteMode
}

type readReceipt struct {
	MessageIds []int
}

func (sendMessage) clientEvent()   {}
func (deleteMessage) clientEvent() {}
func (readReceipt) clientEvent()   {}

// protocolError closes the connection with the given close code.
type protocolError struct {
	code   int
	reason string
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.code, e.reason)
}

func errUnsupported(reason string) *protocolError {
	return &protocolError{code: websocket.CloseUnsupportedData, reason: reason}
}

func errPolicy(reason string) *protocolError {
	return &protocolError{code: websocket.ClosePolicyViolation, reason: reason}
}

func decodeClientEvent(raw []byte) (clientEvent, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errUnsupported("malformed message")
	}

	// clients may omit the type of a plain chat message
	if msg.Type == "" {
		msg.Type = TypeMessage
	}

	switch msg.Type {
	case TypeMessage:
		return sendMessage{Content: msg.Message, ReceiverId: msg.ReceiverId}, nil
	case TypeDeleteMessage:
		if msg.MessageId <= 0 || !msg.DeleteType.Valid() {
			return nil, errUnsupported("malformed delete_message")
		}
		return deleteMessage{MessageId: msg.MessageId, Mode: msg.DeleteType}, nil
	case TypeReadReceipt:
		return readReceipt{MessageIds: msg.MessageIds}, nil
	}

	return nil, errUnsupported("unsupported message type")
}
