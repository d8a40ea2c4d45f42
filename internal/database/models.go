package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Chat struct {
	Id         int
	ExternalId string
	Kind       string
	Name       string
	OwnerId    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Members    []User
}

type Message struct {
	Id        int
	ChatId    int
	UserId    int
	Content   string
	CreatedAt time.Time
}

type Notification struct {
	Id          int
	Message     string
	RecipientId int
	CreatedAt   time.Time
}

type Friendship struct {
	Id          int
	RequesterId int
	RecipientId int
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateChatParams struct {
	ExternalId string
	Kind       string
	Name       string
	OwnerId    int
	MemberIds  []int
}

type CreateMessageParams struct {
	ChatId  int
	UserId  int
	Content string
}
