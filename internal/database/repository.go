package database

import (
	"context"
	"errors"
)

// ErrDuplicateEmail is returned by CreateAccount when the email is taken.
var ErrDuplicateEmail = errors.New("email already registered")

type Repository interface {
	Ping() error
	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)
	GetUser(ctx context.Context, id int) (User, error)
	UpdateUser(ctx context.Context, id int, update UserUpdate) error
	ResetPresence(ctx context.Context) error
	ListContacts(ctx context.Context, viewerId int) ([]Contact, error)
	CreateMessage(ctx context.Context, senderId, receiverId int, content string) (Message, error)
	GetMessage(ctx context.Context, id int) (Message, error)
	UpdateMessage(ctx context.Context, id int, update MessageUpdate) error
	UpdateMessages(ctx context.Context, filter MessageFilter, update MessageUpdate) (int64, error)
	QueryMessages(ctx context.Context, filter MessageFilter) ([]Message, error)
	CountMessages(ctx context.Context, filter MessageFilter) (int, error)
}
