package server

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/acrispino/go-converse/internal/database"
	"github.com/acrispino/go-converse/internal/stats"
)

type RoomKind string

const (
	RoomKindChat RoomKind = "chat"
	RoomKindCall RoomKind = "call"
)

var (
	ErrNotAuthorized = errors.New("not a member of this chat")
	ErrChatNotFound  = errors.New("chat not found")
)

type roomKey struct {
	kind   RoomKind
	chatId string
}

// RoomTracker tracks live membership per (kind, chat) room. Chat rooms and
// call rooms for the same chat are independent: a user can sit in the chat
// room long-term while only entering the call room for the duration of a
// call. Rooms are created lazily on first join and deleted once empty; the
// live set is always a subset of the chat's persisted member list.
type RoomTracker struct {
	mu    sync.Mutex
	rooms map[roomKey]map[int]struct{}
	db    database.ConverseRepository
	log   *log.Logger
	stats stats.StatsProvider
}

func NewRoomTracker(db database.ConverseRepository, logger *log.Logger, su stats.StatsProvider) *RoomTracker {
	return &RoomTracker{
		rooms: make(map[roomKey]map[int]struct{}),
		db:    db,
		log:   logger,
		stats: su,
	}
}

// Join authorizes userId against the chat's persisted member list, then adds
// them to the live room and returns the member snapshot including the
// joiner. Returns ErrChatNotFound or ErrNotAuthorized without touching room
// state.
func (rt *RoomTracker) Join(kind RoomKind, chatId string, userId int) ([]int, error) {
	chat, err := rt.db.GetChatWithMembers(chatId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("fetch chat %q: %w", chatId, err)
	}

	isMember := slices.ContainsFunc(chat.Members, func(m database.User) bool {
		return m.Id == userId
	})
	if !isMember {
		return nil, ErrNotAuthorized
	}

	return rt.Add(kind, chatId, userId), nil
}

// Add places userId in the room without an authorization check and returns
// the member snapshot. Used where membership was already established by the
// invite flow.
func (rt *RoomTracker) Add(kind RoomKind, chatId string, userId int) []int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	key := roomKey{kind: kind, chatId: chatId}
	room, ok := rt.rooms[key]
	if !ok {
		room = make(map[int]struct{})
		rt.rooms[key] = room
		rt.stats.Incr(roomMetric(kind))
		rt.log.Printf("created %s room %q", kind, chatId)
	}
	room[userId] = struct{}{}

	return memberSnapshot(room)
}

// Leave removes userId from the room and returns the remaining member
// snapshot. Leaving a room one is not in, or a room that does not exist, is
// a no-op: disconnect-driven cleanup may race with an explicit leave. An
// emptied room is deleted so the next join starts fresh.
func (rt *RoomTracker) Leave(kind RoomKind, chatId string, userId int) []int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	key := roomKey{kind: kind, chatId: chatId}
	room, ok := rt.rooms[key]
	if !ok {
		return nil
	}

	delete(room, userId)
	if len(room) == 0 {
		delete(rt.rooms, key)
		rt.stats.Decr(roomMetric(kind))
		rt.log.Printf("removed empty %s room %q", kind, chatId)
		return nil
	}

	return memberSnapshot(room)
}

// MembersOf returns the live member snapshot, empty if the room does not
// exist.
func (rt *RoomTracker) MembersOf(kind RoomKind, chatId string) []int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	return memberSnapshot(rt.rooms[roomKey{kind: kind, chatId: chatId}])
}

// RoomsOf returns the chat ids of every room of the given kind that userId
// is currently in. Used for disconnect-driven chat-room cleanup.
func (rt *RoomTracker) RoomsOf(kind RoomKind, userId int) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var chatIds []string
	for key, room := range rt.rooms {
		if key.kind != kind {
			continue
		}
		if _, ok := room[userId]; ok {
			chatIds = append(chatIds, key.chatId)
		}
	}

	return chatIds
}

func memberSnapshot(room map[int]struct{}) []int {
	members := make([]int, 0, len(room))
	for userId := range room {
		members = append(members, userId)
	}
	return members
}

func roomMetric(kind RoomKind) string {
	if kind == RoomKindCall {
		return "NumActiveCallRooms"
	}
	return "NumChatRooms"
}
