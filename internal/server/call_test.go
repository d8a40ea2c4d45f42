package server

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/acrispino/go-converse/internal/database"
	"github.com/acrispino/go-converse/internal/stats"
	"github.com/acrispino/go-converse/internal/testutil"
	"github.com/acrispino/go-converse/internal/types"
)

func newTestCallManager(t *testing.T, db database.ConverseRepository, su *stats.MockStatsUpdater) (*CallManager, *ConnectionRegistry) {
	logger := testutil.TestLogger(t)
	registry := NewConnectionRegistry(logger)
	rooms := NewRoomTracker(db, logger, su)
	return NewCallManager(db, registry, rooms, logger), registry
}

func TestCallManager_handleInitiateCall(t *testing.T) {
	t.Run("rings online members and confirms to caller", func(t *testing.T) {
		db := &database.MockConverseRepository{}
		defer db.AssertExpectations(t)

		db.On("GetChatWithMembers", "chat1").Return(&database.Chat{
			Id:         1,
			ExternalId: "chat1",
			Members:    []database.User{{Id: 1}, {Id: 2}, {Id: 3}},
		}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumActiveCallRooms").Once()
		defer su.AssertExpectations(t)

		cm, registry := newTestCallManager(t, db, su)

		caller := &Client{user: types.User{Id: 1, Username: "caller"}, send: make(chan *ServerMessage, 1)}
		callee := &Client{user: types.User{Id: 2, Username: "callee"}, send: make(chan *ServerMessage, 1)}
		registry.add(caller)
		registry.add(callee)
		// user 3 is a member but offline

		cm.handleInitiateCall(&ClientMessage{
			BaseMessage:  BaseMessage{Id: 1},
			InitiateCall: &InitiateCall{ChatId: "chat1", Type: "video"},
			UserId:       1,
			client:       caller,
		})

		select {
		case msg := <-callee.send:
			assert.NotNil(t, msg.IncomingCall, "expected incoming call event")
			assert.Equal(t, "chat1", msg.IncomingCall.ChatId, "expected chat id on ring")
			assert.Equal(t, 1, msg.IncomingCall.CallerId, "expected caller id on ring")
			assert.Equal(t, "video", msg.IncomingCall.Type, "expected call type on ring")
		default:
			t.Error("expected incoming call to be queued to callee")
		}

		select {
		case msg := <-caller.send:
			assert.NotNil(t, msg.Response, "expected response to caller")
			assert.True(t, msg.Response.Success, "expected success response")
			assert.Nil(t, msg.IncomingCall, "expected caller to not be rung")
		default:
			t.Error("expected success response to caller")
		}

		assert.Equal(t, []int{1}, cm.rooms.MembersOf(RoomKindCall, "chat1"), "expected caller in call room")
	})

	t.Run("chat not found", func(t *testing.T) {
		db := &database.MockConverseRepository{}
		defer db.AssertExpectations(t)

		db.On("GetChatWithMembers", "missing").Return(nil, sql.ErrNoRows).Once()

		cm, _ := newTestCallManager(t, db, &stats.MockStatsUpdater{})
		caller := &Client{user: types.User{Id: 1}, send: make(chan *ServerMessage, 1)}

		cm.handleInitiateCall(&ClientMessage{
			BaseMessage:  BaseMessage{Id: 1},
			InitiateCall: &InitiateCall{ChatId: "missing"},
			UserId:       1,
			client:       caller,
		})

		select {
		case msg := <-caller.send:
			assert.False(t, msg.Response.Success, "expected failure response")
			assert.Equal(t, "Chat not found", msg.Response.Message)
		default:
			t.Error("expected error response to caller")
		}
	})

	t.Run("non-member cannot start a call", func(t *testing.T) {
		db := &database.MockConverseRepository{}
		defer db.AssertExpectations(t)

		db.On("GetChatWithMembers", "chat1").Return(&database.Chat{
			Id:         1,
			ExternalId: "chat1",
			Members:    []database.User{{Id: 2}},
		}, nil).Once()

		cm, _ := newTestCallManager(t, db, &stats.MockStatsUpdater{})
		caller := &Client{user: types.User{Id: 1}, send: make(chan *ServerMessage, 1)}

		cm.handleInitiateCall(&ClientMessage{
			BaseMessage:  BaseMessage{Id: 1},
			InitiateCall: &InitiateCall{ChatId: "chat1"},
			UserId:       1,
			client:       caller,
		})

		select {
		case msg := <-caller.send:
			assert.False(t, msg.Response.Success, "expected failure response")
			assert.Equal(t, "Not authorized to start this call", msg.Response.Message)
		default:
			t.Error("expected error response to caller")
		}

		assert.Empty(t, cm.rooms.MembersOf(RoomKindCall, "chat1"), "expected no call room to be created")
	})

	t.Run("db error", func(t *testing.T) {
		db := &database.MockConverseRepository{}
		defer db.AssertExpectations(t)

		db.On("GetChatWithMembers", "chat1").Return(nil, errors.New("db error")).Once()

		cm, _ := newTestCallManager(t, db, &stats.MockStatsUpdater{})
		caller := &Client{user: types.User{Id: 1}, send: make(chan *ServerMessage, 1)}

		cm.handleInitiateCall(&ClientMessage{
			BaseMessage:  BaseMessage{Id: 1},
			InitiateCall: &InitiateCall{ChatId: "chat1"},
			UserId:       1,
			client:       caller,
		})

		select {
		case msg := <-caller.send:
			assert.False(t, msg.Response.Success, "expected failure response")
			assert.Equal(t, "Failed to start call", msg.Response.Message)
		default:
			t.Error("expected error response to caller")
		}
	})
}

func TestCallManager_handleAcceptCall(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumActiveCallRooms").Once()
	defer su.AssertExpectations(t)

	cm, registry := newTestCallManager(t, &database.MockConverseRepository{}, su)

	caller := &Client{user: types.User{Id: 1, Username: "caller"}, send: make(chan *ServerMessage, 1)}
	accepter := &Client{user: types.User{Id: 2, Username: "accepter"}, send: make(chan *ServerMessage, 1)}
	bystander := &Client{user: types.User{Id: 3, Username: "bystander"}, send: make(chan *ServerMessage, 1)}
	registry.add(caller)
	registry.add(accepter)
	registry.add(bystander)

	cm.handleAcceptCall(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		AcceptCall:  &CallReply{ChatId: "chat1", CallerId: 1},
		UserId:      2,
		client:      accepter,
	})

	select {
	case msg := <-caller.send:
		assert.NotNil(t, msg.CallAccepted, "expected callAccepted event to caller")
		assert.Equal(t, "chat1", msg.CallAccepted.ChatId)
		assert.Equal(t, 2, msg.CallAccepted.UserId, "expected accepter id on event")
	default:
		t.Error("expected callAccepted to be queued to caller")
	}

	// point-to-point: nobody else hears the acceptance
	assert.Len(t, bystander.send, 0, "expected no callAccepted delivered to bystander")

	select {
	case msg := <-accepter.send:
		assert.True(t, msg.Response.Success, "expected success response to accepter")
	default:
		t.Error("expected success response to accepter")
	}

	assert.Equal(t, []int{2}, cm.rooms.MembersOf(RoomKindCall, "chat1"), "expected accepter in call room")
}

func TestCallManager_handleRejectCall(t *testing.T) {
	cm, registry := newTestCallManager(t, &database.MockConverseRepository{}, &stats.MockStatsUpdater{})

	caller := &Client{user: types.User{Id: 1, Username: "caller"}, send: make(chan *ServerMessage, 1)}
	rejecter := &Client{user: types.User{Id: 2, Username: "rejecter"}, send: make(chan *ServerMessage, 1)}
	registry.add(caller)
	registry.add(rejecter)

	cm.handleRejectCall(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		RejectCall:  &CallReply{ChatId: "chat1", CallerId: 1},
		UserId:      2,
		client:      rejecter,
	})

	select {
	case msg := <-caller.send:
		assert.NotNil(t, msg.CallRejected, "expected callRejected event to caller")
		assert.Equal(t, 2, msg.CallRejected.UserId, "expected rejecter id on event")
	default:
		t.Error("expected callRejected to be queued to caller")
	}

	// the rejecter never entered the call room
	assert.Empty(t, cm.rooms.MembersOf(RoomKindCall, "chat1"), "expected call room membership untouched")
}

func TestCallManager_handleJoinCall(t *testing.T) {
	t.Run("member joins and receives participant list", func(t *testing.T) {
		db := &database.MockConverseRepository{}
		defer db.AssertExpectations(t)

		db.On("GetChatWithMembers", "chat1").Return(&database.Chat{
			Id:         1,
			ExternalId: "chat1",
			Members:    []database.User{{Id: 1}, {Id: 2}},
		}, nil).Once()
		db.On("GetAccountsByIds", mock.Anything).Return([]database.User{
			{Id: 1, Username: "alice"},
			{Id: 2, Username: "bob"},
		}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumActiveCallRooms").Once()
		defer su.AssertExpectations(t)

		cm, registry := newTestCallManager(t, db, su)
		cm.rooms.Add(RoomKindCall, "chat1", 1)

		existing := &Client{user: types.User{Id: 1, Username: "alice"}, send: make(chan *ServerMessage, 1)}
		joiner := &Client{user: types.User{Id: 2, Username: "bob"}, send: make(chan *ServerMessage, 1)}
		registry.add(existing)
		registry.add(joiner)

		cm.handleJoinCall(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			JoinCall:    &JoinCall{ChatId: "chat1"},
			UserId:      2,
			client:      joiner,
		})

		select {
		case msg := <-existing.send:
			assert.NotNil(t, msg.UserJoined, "expected userJoined event to existing participant")
			assert.Equal(t, 2, msg.UserJoined.UserId)
			assert.Equal(t, "bob", msg.UserJoined.Username)
		default:
			t.Error("expected userJoined to be queued to existing participant")
		}

		select {
		case msg := <-joiner.send:
			assert.NotNil(t, msg.Response, "expected response to joiner")
			assert.True(t, msg.Response.Success, "expected success response")
			participants, ok := msg.Response.Data["participants"].([]types.Participant)
			assert.True(t, ok, "expected participants in response data")
			assert.ElementsMatch(t, []types.Participant{
				{UserId: 1, Username: "alice"},
				{UserId: 2, Username: "bob"},
			}, participants, "expected full participant list")
		default:
			t.Error("expected success response to joiner")
		}
	})

	t.Run("unauthorized join leaves room unchanged", func(t *testing.T) {
		db := &database.MockConverseRepository{}
		defer db.AssertExpectations(t)

		db.On("GetChatWithMembers", "chat1").Return(&database.Chat{
			Id:         1,
			ExternalId: "chat1",
			Members:    []database.User{{Id: 1}},
		}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumActiveCallRooms").Once()
		defer su.AssertExpectations(t)

		cm, registry := newTestCallManager(t, db, su)
		cm.rooms.Add(RoomKindCall, "chat1", 1)

		joiner := &Client{user: types.User{Id: 99, Username: "intruder"}, send: make(chan *ServerMessage, 1)}
		registry.add(joiner)

		cm.handleJoinCall(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			JoinCall:    &JoinCall{ChatId: "chat1"},
			UserId:      99,
			client:      joiner,
		})

		select {
		case msg := <-joiner.send:
			assert.False(t, msg.Response.Success, "expected failure response")
			assert.Equal(t, "Not authorized to join this call", msg.Response.Message)
		default:
			t.Error("expected error response to joiner")
		}

		assert.Equal(t, []int{1}, cm.rooms.MembersOf(RoomKindCall, "chat1"), "expected call room membership unchanged")
	})

	t.Run("chat not found", func(t *testing.T) {
		db := &database.MockConverseRepository{}
		defer db.AssertExpectations(t)

		db.On("GetChatWithMembers", "missing").Return(nil, sql.ErrNoRows).Once()

		cm, _ := newTestCallManager(t, db, &stats.MockStatsUpdater{})
		joiner := &Client{user: types.User{Id: 1}, send: make(chan *ServerMessage, 1)}

		cm.handleJoinCall(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			JoinCall:    &JoinCall{ChatId: "missing"},
			UserId:      1,
			client:      joiner,
		})

		select {
		case msg := <-joiner.send:
			assert.False(t, msg.Response.Success, "expected failure response")
			assert.Equal(t, "Chat not found", msg.Response.Message)
		default:
			t.Error("expected error response to joiner")
		}
	})

	t.Run("failed participant resolution rolls the join back", func(t *testing.T) {
		db := &database.MockConverseRepository{}
		defer db.AssertExpectations(t)

		db.On("GetChatWithMembers", "chat1").Return(&database.Chat{
			Id:         1,
			ExternalId: "chat1",
			Members:    []database.User{{Id: 2}},
		}, nil).Once()
		db.On("GetAccountsByIds", mock.Anything).Return([]database.User{}, errors.New("db error")).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumActiveCallRooms").Once()
		su.On("Decr", "NumActiveCallRooms").Once()
		defer su.AssertExpectations(t)

		cm, registry := newTestCallManager(t, db, su)

		joiner := &Client{user: types.User{Id: 2, Username: "bob"}, send: make(chan *ServerMessage, 1)}
		registry.add(joiner)

		cm.handleJoinCall(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			JoinCall:    &JoinCall{ChatId: "chat1"},
			UserId:      2,
			client:      joiner,
		})

		select {
		case msg := <-joiner.send:
			assert.False(t, msg.Response.Success, "expected failure response")
			assert.Equal(t, "Failed to join call", msg.Response.Message)
		default:
			t.Error("expected error response to joiner")
		}

		assert.Empty(t, cm.rooms.MembersOf(RoomKindCall, "chat1"), "expected user to not remain in the call room after a failed join")
	})
}

func TestCallManager_handleLeaveCall(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumActiveCallRooms").Once()
	su.On("Decr", "NumActiveCallRooms").Once()
	defer su.AssertExpectations(t)

	cm, registry := newTestCallManager(t, &database.MockConverseRepository{}, su)
	cm.rooms.Add(RoomKindCall, "chat1", 1)
	cm.rooms.Add(RoomKindCall, "chat1", 2)

	remaining := &Client{user: types.User{Id: 1, Username: "alice"}, send: make(chan *ServerMessage, 1)}
	leaver := &Client{user: types.User{Id: 2, Username: "bob"}, send: make(chan *ServerMessage, 1)}
	registry.add(remaining)
	registry.add(leaver)

	cm.handleLeaveCall(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		LeaveCall:   &LeaveCall{ChatId: "chat1"},
		UserId:      2,
		client:      leaver,
	})

	select {
	case msg := <-remaining.send:
		assert.NotNil(t, msg.UserLeft, "expected userLeft event to remaining participant")
		assert.Equal(t, 2, msg.UserLeft.UserId)
		assert.Equal(t, "bob", msg.UserLeft.Username)
	default:
		t.Error("expected userLeft to be queued to remaining participant")
	}

	select {
	case msg := <-leaver.send:
		assert.True(t, msg.Response.Success, "expected success response to leaver")
	default:
		t.Error("expected success response to leaver")
	}

	assert.Equal(t, []int{1}, cm.rooms.MembersOf(RoomKindCall, "chat1"), "expected only remaining member in call room")

	// the last participant leaving empties and deletes the room
	cm.handleLeaveCall(&ClientMessage{
		BaseMessage: BaseMessage{Id: 2},
		LeaveCall:   &LeaveCall{ChatId: "chat1"},
		UserId:      1,
		client:      remaining,
	})

	assert.Empty(t, cm.rooms.MembersOf(RoomKindCall, "chat1"), "expected call room to be deleted")
}
