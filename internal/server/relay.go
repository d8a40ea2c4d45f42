package server

import (
	"log"

	"github.com/acrispino/go-converse/internal/stats"
)

// SignalingRelay forwards call-negotiation payloads (session-description
// offers and answers, ICE candidates) from a sender to a specific target
// user's connections. The relay is stateless and never inspects the payload;
// if the target has no live connection the message is dropped silently, with
// no retry or queueing, since signaling is only meaningful between two
// simultaneously-live peers.
type SignalingRelay struct {
	registry *ConnectionRegistry
	log      *log.Logger
	stats    stats.StatsProvider
}

func NewSignalingRelay(registry *ConnectionRegistry, logger *log.Logger, su stats.StatsProvider) *SignalingRelay {
	return &SignalingRelay{
		registry: registry,
		log:      logger,
		stats:    su,
	}
}

func (sr *SignalingRelay) relayOffer(senderId int, sig *Signal) {
	sr.relay(senderId, sig, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Offer:       &SignalEvent{UserId: senderId, Payload: sig.Payload},
	})
}

func (sr *SignalingRelay) relayAnswer(senderId int, sig *Signal) {
	sr.relay(senderId, sig, &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Answer:      &SignalEvent{UserId: senderId, Payload: sig.Payload},
	})
}

func (sr *SignalingRelay) relayIceCandidate(senderId int, sig *Signal) {
	sr.relay(senderId, sig, &ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		IceCandidate: &SignalEvent{UserId: senderId, Payload: sig.Payload},
	})
}

func (sr *SignalingRelay) relay(senderId int, sig *Signal, msg *ServerMessage) {
	clients := sr.registry.clientsFor(sig.TargetUserId)
	if len(clients) == 0 {
		sr.log.Printf("dropping signal from %d: user %d not connected", senderId, sig.TargetUserId)
		return
	}

	for _, c := range clients {
		c.queueMessage(msg)
	}
	sr.stats.Incr("NumSignalsRelayed")
}
