package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/acrispino/go-converse/internal/stats"
	"github.com/acrispino/go-converse/internal/testutil"
	"github.com/acrispino/go-converse/internal/types"
)

func TestSignalingRelay_relayOffer(t *testing.T) {
	registry := NewConnectionRegistry(testutil.TestLogger(t))

	target := &Client{user: types.User{Id: 2}, send: make(chan *ServerMessage, 1)}
	registry.add(target)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumSignalsRelayed").Once()
	defer su.AssertExpectations(t)

	sr := NewSignalingRelay(registry, testutil.TestLogger(t), su)

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	sr.relayOffer(1, &Signal{ChatId: "chat1", TargetUserId: 2, Payload: payload})

	select {
	case msg := <-target.send:
		assert.NotNil(t, msg.Offer, "expected offer event")
		assert.Equal(t, 1, msg.Offer.UserId, "expected sender id on relayed offer")
		assert.Equal(t, payload, msg.Offer.Payload, "expected payload to be relayed verbatim")
		assert.Nil(t, msg.Answer, "expected no answer field")
		assert.Nil(t, msg.IceCandidate, "expected no ice candidate field")
	default:
		t.Error("expected offer to be queued to target")
	}
}

func TestSignalingRelay_relayAnswer(t *testing.T) {
	registry := NewConnectionRegistry(testutil.TestLogger(t))

	target := &Client{user: types.User{Id: 1}, send: make(chan *ServerMessage, 1)}
	registry.add(target)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumSignalsRelayed").Once()
	defer su.AssertExpectations(t)

	sr := NewSignalingRelay(registry, testutil.TestLogger(t), su)

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	sr.relayAnswer(2, &Signal{ChatId: "chat1", TargetUserId: 1, Payload: payload})

	select {
	case msg := <-target.send:
		assert.NotNil(t, msg.Answer, "expected answer event")
		assert.Equal(t, 2, msg.Answer.UserId, "expected sender id on relayed answer")
		assert.Equal(t, payload, msg.Answer.Payload, "expected payload to be relayed verbatim")
	default:
		t.Error("expected answer to be queued to target")
	}
}

func TestSignalingRelay_relayIceCandidate(t *testing.T) {
	registry := NewConnectionRegistry(testutil.TestLogger(t))

	// both of the target's connections receive the candidate
	conn1 := &Client{user: types.User{Id: 2}, send: make(chan *ServerMessage, 1)}
	conn2 := &Client{user: types.User{Id: 2}, send: make(chan *ServerMessage, 1)}
	registry.add(conn1)
	registry.add(conn2)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumSignalsRelayed").Once()
	defer su.AssertExpectations(t)

	sr := NewSignalingRelay(registry, testutil.TestLogger(t), su)

	payload := json.RawMessage(`{"candidate":"candidate:0"}`)
	sr.relayIceCandidate(1, &Signal{ChatId: "chat1", TargetUserId: 2, Payload: payload})

	assert.Len(t, conn1.send, 1, "expected candidate queued to first connection")
	assert.Len(t, conn2.send, 1, "expected candidate queued to second connection")
}

func TestSignalingRelay_dropsWhenTargetOffline(t *testing.T) {
	registry := NewConnectionRegistry(testutil.TestLogger(t))

	sender := &Client{user: types.User{Id: 1}, send: make(chan *ServerMessage, 1)}
	registry.add(sender)

	// no Incr expectation: a dropped signal is not counted
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	sr := NewSignalingRelay(registry, testutil.TestLogger(t), su)

	sr.relayOffer(1, &Signal{ChatId: "chat1", TargetUserId: 99, Payload: json.RawMessage(`{}`)})

	assert.Len(t, sender.send, 0, "expected no error feedback to the sender on a dropped signal")
}
