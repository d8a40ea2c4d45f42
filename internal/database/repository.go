package database

type ConverseRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	GetAccountsByIds(accountIds []int) ([]User, error)
	CreateChat(params CreateChatParams) (Chat, error)
	GetChatByExternalId(externalId string) (Chat, error)
	GetChatWithMembers(externalId string) (*Chat, error)
	ListChatsForAccount(accountId int, kind string) ([]Chat, error)
	IsChatMember(chatId, accountId int) bool
	AddChatMember(chatId, accountId int) error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(chatId, before, limit int) ([]Message, error)
	CreateNotification(message string, recipientId int) (Notification, error)
	ListNotifications(recipientId int) ([]Notification, error)
	CreateFriendship(requesterId, recipientId int) (Friendship, error)
	GetFriendship(id int) (Friendship, error)
	UpdateFriendshipStatus(id int, status string) (Friendship, error)
	ListFriendships(accountId int) ([]Friendship, error)
}
