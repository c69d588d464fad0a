package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetUser(ctx context.Context, id int) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdateUser(ctx context.Context, id int, update UserUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}
func (m *MockRepository) ResetPresence(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) ListContacts(ctx context.Context, viewerId int) ([]Contact, error) {
	args := m.Called(ctx, viewerId)
	return args.Get(0).([]Contact), args.Error(1)
}
func (m *MockRepository) CreateMessage(ctx context.Context, senderId, receiverId int, content string) (Message, error) {
	args := m.Called(ctx, senderId, receiverId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessage(ctx context.Context, id int) (Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) UpdateMessage(ctx context.Context, id int, update MessageUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}
func (m *MockRepository) UpdateMessages(ctx context.Context, filter MessageFilter, update MessageUpdate) (int64, error) {
	args := m.Called(ctx, filter, update)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) QueryMessages(ctx context.Context, filter MessageFilter) ([]Message, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) CountMessages(ctx context.Context, filter MessageFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}
