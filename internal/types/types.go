package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// ChatKind distinguishes group channels from direct conversations. Both are
// "chats" to the live core: an external id plus a persisted member list.
type ChatKind string

const (
	ChatKindChannel      ChatKind = "channel"
	ChatKindConversation ChatKind = "conversation"
)

type Chat struct {
	Id         int       `json:"id"`
	ExternalId string    `json:"external_id"`
	Kind       ChatKind  `json:"kind"`
	Name       string    `json:"name,omitempty"`
	OwnerId    int       `json:"owner_id,omitempty"`
	Members    []User    `json:"members,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id        int       `json:"id"`
	ChatId    string    `json:"chat_id"`
	UserId    int       `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Notification struct {
	Id          int       `json:"id"`
	Message     string    `json:"message"`
	RecipientId int       `json:"recipient_id"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "PENDING"
	FriendshipAccepted FriendshipStatus = "ACCEPTED"
	FriendshipRejected FriendshipStatus = "REJECTED"
)

type Friendship struct {
	Id          int              `json:"id"`
	RequesterId int              `json:"requester_id"`
	RecipientId int              `json:"recipient_id"`
	Status      FriendshipStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at,omitempty"`
}

// Participant is a resolved call-room member as returned to a joining
// connection: identity plus display name from the user store.
type Participant struct {
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
}
