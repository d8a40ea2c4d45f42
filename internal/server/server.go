package server

import (
	"context"
	"log"
	"sync"

	"github.com/acrispino/go-converse/internal/database"
	"github.com/acrispino/go-converse/internal/stats"
	"github.com/acrispino/go-converse/internal/types"
)

// ChatServer is the composition root of the live core: the connection
// registry, the room tracker, the signaling relay and the call manager are
// constructed once here and shared by every connection. Register/deregister
// events are serialized through Run so that online/offline transitions and
// their presence broadcasts cannot interleave.
type ChatServer struct {
	log            *log.Logger
	db             database.ConverseRepository
	registry       *ConnectionRegistry
	rooms          *RoomTracker
	relay          *SignalingRelay
	calls          *CallManager
	stats          stats.StatsProvider
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.ConverseRepository, su stats.StatsProvider) (*ChatServer, error) {
	registry := NewConnectionRegistry(logger)
	rooms := NewRoomTracker(db, logger, su)

	cs := &ChatServer{
		log:            logger,
		db:             db,
		registry:       registry,
		rooms:          rooms,
		relay:          NewSignalingRelay(registry, logger, su),
		calls:          NewCallManager(db, registry, rooms, logger),
		stats:          su,
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	for _, metric := range []string{
		"NumActiveClients",
		"NumChatRooms",
		"NumActiveCallRooms",
		"NumSignalsRelayed",
	} {
		su.RegisterMetric(metric)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection %s from %q", client.id, client.user.Username)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %s from %q", client.id, client.user.Username)
			cs.removeClient(client)
		case <-cs.stop:
			cs.log.Println("closing client connections")
			for _, c := range cs.registry.allClients() {
				c.stopClient()
			}

			close(cs.done)
			return
		}
	}
}

// RegisterClient hands a freshly upgraded connection to the server loop.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.RegisterChan <- c
}

func (cs *ChatServer) addClient(c *Client) {
	first := cs.registry.add(c)
	cs.stats.Incr("NumActiveClients")

	if first {
		cs.registry.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Presence:    &Presence{Online: true, UserId: c.user.Id},
			SkipClient:  c,
		})
	}
}

func (cs *ChatServer) removeClient(c *Client) {
	last := cs.registry.remove(c)
	cs.stats.Decr("NumActiveClients")

	if !last {
		return
	}

	cs.registry.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Presence:    &Presence{Online: false, UserId: c.user.Id},
	})

	// Chat-room presence dies with the last connection. Call rooms are left
	// alone: a user on a call must send an explicit leave, so a brief
	// reconnect does not drop them from the call.
	for _, chatId := range cs.rooms.RoomsOf(RoomKindChat, c.user.Id) {
		remaining := cs.rooms.Leave(RoomKindChat, chatId, c.user.Id)
		cs.registry.sendToUsers(remaining, &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			ChatPresence: &ChatPresence{
				ChatId:   chatId,
				UserId:   c.user.Id,
				Username: c.user.Username,
				Joined:   false,
			},
		})
	}
}

// handleJoinChat places the connection's user in the chat room after the
// tracker's persisted-membership check and announces the join to the other
// live members.
func (cs *ChatServer) handleJoinChat(msg *ClientMessage) {
	chatId := msg.JoinChat.ChatId

	members, err := cs.rooms.Join(RoomKindChat, chatId, msg.UserId)
	if err != nil {
		switch {
		case err == ErrChatNotFound:
			msg.client.queueMessage(ErrResponse(msg.Id, "Chat not found"))
		case err == ErrNotAuthorized:
			msg.client.queueMessage(ErrResponse(msg.Id, "Not authorized to join this chat"))
		default:
			cs.log.Println("join chat room:", err)
			msg.client.queueMessage(ErrResponse(msg.Id, "Failed to join chat"))
		}
		return
	}

	joined := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		ChatPresence: &ChatPresence{
			ChatId:   chatId,
			UserId:   msg.UserId,
			Username: msg.client.user.Username,
			Joined:   true,
		},
		SkipClient: msg.client,
	}
	for _, memberId := range members {
		if memberId == msg.UserId {
			continue
		}
		cs.registry.sendToUser(memberId, joined)
	}

	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

func (cs *ChatServer) handleLeaveChat(msg *ClientMessage) {
	chatId := msg.LeaveChat.ChatId

	remaining := cs.rooms.Leave(RoomKindChat, chatId, msg.UserId)

	cs.registry.sendToUsers(remaining, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		ChatPresence: &ChatPresence{
			ChatId:   chatId,
			UserId:   msg.UserId,
			Username: msg.client.user.Username,
			Joined:   false,
		},
	})

	msg.client.queueMessage(NoErrOK(msg.Id, nil))
}

// NotifyUser pushes a persisted notification to the recipient's live
// connections. Called from the REST layer; delivers nothing if the user is
// offline.
func (cs *ChatServer) NotifyUser(userId int, n *types.Notification) {
	cs.registry.sendToUser(userId, &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: n,
	})
}

// BroadcastMessage fans a newly persisted chat message out to the chat
// room's live members. Called from the REST layer after the write succeeds.
func (cs *ChatServer) BroadcastMessage(chatId string, m *types.Message) {
	members := cs.rooms.MembersOf(RoomKindChat, chatId)
	cs.registry.sendToUsers(members, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		NewMessage:  m,
	})
}

// IsOnline reports whether the user has at least one live connection.
func (cs *ChatServer) IsOnline(userId int) bool {
	return cs.registry.isOnline(userId)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.stopOnce.Do(func() {
		close(cs.stop)
	})

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
