package server

import (
	"encoding/json"
	"time"

	"github.com/acrispino/go-converse/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the closed union of inbound events. Exactly one event
// field is set per message; the shape is validated at the transport boundary
// before any handler runs.
type ClientMessage struct {
	BaseMessage
	InitiateCall *InitiateCall `json:"initiate_call,omitempty"`
	AcceptCall   *CallReply    `json:"accept_call,omitempty"`
	RejectCall   *CallReply    `json:"reject_call,omitempty"`
	JoinCall     *JoinCall     `json:"join_call,omitempty"`
	LeaveCall    *LeaveCall    `json:"leave_call,omitempty"`
	Offer        *Signal       `json:"offer,omitempty"`
	Answer       *Signal       `json:"answer,omitempty"`
	IceCandidate *Signal       `json:"ice_candidate,omitempty"`
	JoinChat     *JoinChat     `json:"join_chat,omitempty"`
	LeaveChat    *LeaveChat    `json:"leave_chat,omitempty"`
	UserId       int           `json:"-"`
	client       *Client       `json:"-"`
}

type InitiateCall struct {
	ChatId string `json:"chat_id"`
	Type   string `json:"type"`
}

// CallReply correlates an accept/reject with an outstanding invite by
// (chat id, caller id). No invite object is stored server-side.
type CallReply struct {
	ChatId   string `json:"chat_id"`
	CallerId int    `json:"caller_id"`
}

type JoinCall struct {
	ChatId string `json:"chat_id"`
}

type LeaveCall struct {
	ChatId string `json:"chat_id"`
}

// Signal carries an opaque negotiation payload. The server never inspects
// Payload; it is relayed verbatim to the target user.
type Signal struct {
	ChatId       string          `json:"chat_id"`
	TargetUserId int             `json:"target_user_id"`
	Payload      json.RawMessage `json:"payload"`
}

type JoinChat struct {
	ChatId string `json:"chat_id"`
}

type LeaveChat struct {
	ChatId string `json:"chat_id"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response           `json:"response,omitempty"`
	Presence     *Presence           `json:"presence,omitempty"`
	IncomingCall *IncomingCall       `json:"incoming_call,omitempty"`
	CallAccepted *CallUpdate         `json:"call_accepted,omitempty"`
	CallRejected *CallUpdate         `json:"call_rejected,omitempty"`
	UserJoined   *CallPresence       `json:"user_joined,omitempty"`
	UserLeft     *CallPresence       `json:"user_left,omitempty"`
	ChatPresence *ChatPresence       `json:"chat_presence,omitempty"`
	Offer        *SignalEvent        `json:"offer,omitempty"`
	Answer       *SignalEvent        `json:"answer,omitempty"`
	IceCandidate *SignalEvent        `json:"ice_candidate,omitempty"`
	Notification *types.Notification `json:"notification,omitempty"`
	NewMessage   *types.Message      `json:"new_message,omitempty"`
	SkipClient   *Client             `json:"-"`
}

type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Presence reports a global online/offline transition: the user's first
// connection came up or their last connection went away.
type Presence struct {
	Online bool `json:"online"`
	UserId int  `json:"user_id"`
}

type IncomingCall struct {
	ChatId   string `json:"chat_id"`
	CallerId int    `json:"caller_id"`
	Type     string `json:"type"`
}

type CallUpdate struct {
	ChatId string `json:"chat_id"`
	UserId int    `json:"user_id"`
}

type CallPresence struct {
	ChatId   string `json:"chat_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
}

type ChatPresence struct {
	ChatId   string `json:"chat_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
	Joined   bool   `json:"joined"`
}

type SignalEvent struct {
	UserId  int             `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			Success: true,
			Data:    data,
		},
	}
}

func ErrResponse(id int, message string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			Success: false,
			Message: message,
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			Success: false,
			Message: "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
