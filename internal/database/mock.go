package database

import (
	"github.com/stretchr/testify/mock"
)

type MockConverseRepository struct {
	mock.Mock
}

func (m *MockConverseRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockConverseRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConverseRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConverseRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConverseRepository) GetAccountsByIds(accountIds []int) ([]User, error) {
	args := m.Called(accountIds)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockConverseRepository) CreateChat(params CreateChatParams) (Chat, error) {
	args := m.Called(params)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockConverseRepository) GetChatByExternalId(externalId string) (Chat, error) {
	args := m.Called(externalId)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockConverseRepository) GetChatWithMembers(externalId string) (*Chat, error) {
	args := m.Called(externalId)
	if chat, ok := args.Get(0).(*Chat); ok {
		return chat, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockConverseRepository) ListChatsForAccount(accountId int, kind string) ([]Chat, error) {
	args := m.Called(accountId, kind)
	return args.Get(0).([]Chat), args.Error(1)
}
func (m *MockConverseRepository) IsChatMember(chatId, accountId int) bool {
	args := m.Called(chatId, accountId)
	return args.Bool(0)
}
func (m *MockConverseRepository) AddChatMember(chatId, accountId int) error {
	args := m.Called(chatId, accountId)
	return args.Error(0)
}
func (m *MockConverseRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockConverseRepository) GetMessages(chatId, before, limit int) ([]Message, error) {
	args := m.Called(chatId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockConverseRepository) CreateNotification(message string, recipientId int) (Notification, error) {
	args := m.Called(message, recipientId)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockConverseRepository) ListNotifications(recipientId int) ([]Notification, error) {
	args := m.Called(recipientId)
	return args.Get(0).([]Notification), args.Error(1)
}
func (m *MockConverseRepository) CreateFriendship(requesterId, recipientId int) (Friendship, error) {
	args := m.Called(requesterId, recipientId)
	return args.Get(0).(Friendship), args.Error(1)
}
func (m *MockConverseRepository) GetFriendship(id int) (Friendship, error) {
	args := m.Called(id)
	return args.Get(0).(Friendship), args.Error(1)
}
func (m *MockConverseRepository) UpdateFriendshipStatus(id int, status string) (Friendship, error) {
	args := m.Called(id, status)
	return args.Get(0).(Friendship), args.Error(1)
}
func (m *MockConverseRepository) ListFriendships(accountId int) ([]Friendship, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Friendship), args.Error(1)
}
