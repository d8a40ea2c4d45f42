package server

import (
	"database/sql"
	"errors"
	"log"

	"github.com/acrispino/go-converse/internal/database"
	"github.com/acrispino/go-converse/internal/types"
)

// CallManager implements call invite/accept/reject/join/leave on top of the
// room tracker, the connection registry and the persisted chat store. There
// is no stored call-session object: the call room's live member set is the
// single source of truth for who is on the call, and an outstanding invite
// exists only as the (chat id, caller id) correlation supplied by clients.
type CallManager struct {
	db       database.ConverseRepository
	registry *ConnectionRegistry
	rooms    *RoomTracker
	log      *log.Logger
}

func NewCallManager(db database.ConverseRepository, registry *ConnectionRegistry, rooms *RoomTracker, logger *log.Logger) *CallManager {
	return &CallManager{
		db:       db,
		registry: registry,
		rooms:    rooms,
		log:      logger,
	}
}

// handleInitiateCall verifies the caller belongs to the chat, places them in
// the call room and rings every other persisted member that is currently
// online. Offline members receive nothing and are not queued.
func (cm *CallManager) handleInitiateCall(msg *ClientMessage) {
	chat, err := cm.db.GetChatWithMembers(msg.InitiateCall.ChatId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			msg.client.queueMessage(ErrResponse(msg.Id, "Chat not found"))
		} else {
			cm.log.Println("GetChatWithMembers:", err)
			msg.client.queueMessage(ErrResponse(msg.Id, "Failed to start call"))
		}
		return
	}

	if !isChatMember(chat, msg.UserId) {
		msg.client.queueMessage(ErrResponse(msg.Id, "Not authorized to start this call"))
		return
	}

	cm.rooms.Add(RoomKindCall, chat.ExternalId, msg.UserId)

	ring := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		IncomingCall: &IncomingCall{
			ChatId:   chat.ExternalId,
			CallerId: msg.UserId,
			Type:     msg.InitiateCall.Type,
		},
	}
	for _, member := range chat.Members {
		if member.Id == msg.UserId {
			continue
		}
		cm.registry.sendToUser(member.Id, ring)
	}

	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

// handleAcceptCall notifies the caller point-to-point and joins the accepter
// to the call room. The callAccepted event is never broadcast to the room.
func (cm *CallManager) handleAcceptCall(msg *ClientMessage) {
	cm.registry.sendToUser(msg.AcceptCall.CallerId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		CallAccepted: &CallUpdate{
			ChatId: msg.AcceptCall.ChatId,
			UserId: msg.UserId,
		},
	})

	cm.rooms.Add(RoomKindCall, msg.AcceptCall.ChatId, msg.UserId)

	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

// handleRejectCall notifies the caller point-to-point. The rejecter was
// never in the call room, so membership is untouched.
func (cm *CallManager) handleRejectCall(msg *ClientMessage) {
	cm.registry.sendToUser(msg.RejectCall.CallerId, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		CallRejected: &CallUpdate{
			ChatId: msg.RejectCall.ChatId,
			UserId: msg.UserId,
		},
	})

	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

// handleJoinCall adds the user to the call room after the tracker's
// membership check, announces them to the existing participants and returns
// the full resolved participant list to the joining connection.
func (cm *CallManager) handleJoinCall(msg *ClientMessage) {
	chatId := msg.JoinCall.ChatId

	members, err := cm.rooms.Join(RoomKindCall, chatId, msg.UserId)
	if err != nil {
		switch {
		case errors.Is(err, ErrChatNotFound):
			msg.client.queueMessage(ErrResponse(msg.Id, "Chat not found"))
		case errors.Is(err, ErrNotAuthorized):
			msg.client.queueMessage(ErrResponse(msg.Id, "Not authorized to join this call"))
		default:
			cm.log.Println("join call room:", err)
			msg.client.queueMessage(ErrResponse(msg.Id, "Failed to join call"))
		}
		return
	}

	participants, err := cm.resolveParticipants(members)
	if err != nil {
		// the join is reported as failed, so the room must not keep the user
		cm.rooms.Leave(RoomKindCall, chatId, msg.UserId)
		cm.log.Println("resolve participants:", err)
		msg.client.queueMessage(ErrResponse(msg.Id, "Failed to join call"))
		return
	}

	joined := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		UserJoined: &CallPresence{
			ChatId:   chatId,
			UserId:   msg.UserId,
			Username: msg.client.user.Username,
		},
		SkipClient: msg.client,
	}
	for _, memberId := range members {
		if memberId == msg.UserId {
			continue
		}
		cm.registry.sendToUser(memberId, joined)
	}

	msg.client.queueMessage(NoErrOK(msg.Id, map[string]any{
		"participants": participants,
	}))
}

// handleLeaveCall removes the user from the call room and announces the
// departure to the remaining participants.
func (cm *CallManager) handleLeaveCall(msg *ClientMessage) {
	chatId := msg.LeaveCall.ChatId

	remaining := cm.rooms.Leave(RoomKindCall, chatId, msg.UserId)

	left := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		UserLeft: &CallPresence{
			ChatId:   chatId,
			UserId:   msg.UserId,
			Username: msg.client.user.Username,
		},
	}
	cm.registry.sendToUsers(remaining, left)

	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

// resolveParticipants maps live call-room member ids to identities from the
// user store. Display names are never synthesized.
func (cm *CallManager) resolveParticipants(memberIds []int) ([]types.Participant, error) {
	users, err := cm.db.GetAccountsByIds(memberIds)
	if err != nil {
		return nil, err
	}

	participants := make([]types.Participant, 0, len(users))
	for _, u := range users {
		participants = append(participants, types.Participant{
			UserId:   u.Id,
			Username: u.Username,
		})
	}

	return participants, nil
}

func isChatMember(chat *database.Chat, userId int) bool {
	for _, m := range chat.Members {
		if m.Id == userId {
			return true
		}
	}
	return false
}
