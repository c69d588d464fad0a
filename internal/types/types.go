package types

import (
	"time"
)

// User is the authenticated identity handed to a connection and returned by
// the account endpoints.
type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Contact is another user as listed to the viewer.
type Contact struct {
	User
	IsOnline           bool       `json:"is_online"`
	LastSeenDisplay    string     `json:"last_seen_display"`
	LastSeenISO        *time.Time `json:"last_seen_iso"`
	UnreadCount        int        `json:"unread_count"`
	UnreadCountDisplay string     `json:"unread_count_display"`
}

type Message struct {
	Id         int       `json:"id"`
	SenderId   int       `json:"sender_id"`
	ReceiverId int       `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
	IsMine     bool      `json:"is_mine"`
}

// Conversation is a direct conversation opened by the viewer.
type Conversation struct {
	RoomName  string    `json:"room_name"`
	OtherUser Contact   `json:"other_user"`
	Messages  []Message `json:"messages"`
}
