package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	IsOnline     bool
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contact is a user as seen from another user's contact list.
type Contact struct {
	User
	// UnreadCount is the number of unread messages the contact sent to the viewer.
	UnreadCount int
}

type Message struct {
	Id                int
	SenderId          int
	ReceiverId        int
	Content           string
	CreatedAt         time.Time
	IsRead            bool
	IsDeleted         bool
	DeletedBySender   bool
	DeletedByReceiver bool
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

// UserUpdate lists the presence fields to change on a user row.
// Nil fields are left untouched.
type UserUpdate struct {
	IsOnline *bool
	LastSeen *time.Time
}

// MessageUpdate lists the flags to set on one or more messages.
// Flags can only be set, never cleared.
type MessageUpdate struct {
	MarkRead          bool
	DeleteForEveryone bool
	DeleteBySender    bool
	DeleteByReceiver  bool
}

func (u MessageUpdate) empty() bool {
	return !u.MarkRead && !u.DeleteForEveryone && !u.DeleteBySender && !u.DeleteByReceiver
}

// MessageFilter selects messages. Zero-valued fields do not filter.
type MessageFilter struct {
	Ids        []int
	SenderId   int
	ReceiverId int
	// Between selects messages exchanged in either direction by the two users.
	Between [2]int
	Unread  bool
}

func (f MessageFilter) matches(m Message) bool {
	if f.Ids != nil && !containsInt(f.Ids, m.Id) {
		return false
	}
	if f.SenderId != 0 && m.SenderId != f.SenderId {
		return false
	}
	if f.ReceiverId != 0 && m.ReceiverId != f.ReceiverId {
		return false
	}
	if f.Between != [2]int{} {
		a, b := f.Between[0], f.Between[1]
		if !(m.SenderId == a && m.ReceiverId == b) && !(m.SenderId == b && m.ReceiverId == a) {
			return false
		}
	}
	if f.Unread && m.IsRead {
		return false
	}
	return true
}

func containsInt(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
