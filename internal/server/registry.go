package server

import (
	"log"
	"sync"
)

// ConnectionRegistry maps authenticated user ids to their live connections.
// A user may hold several connections at once (multiple devices or tabs);
// the user is online iff at least one connection is registered. The registry
// is the single source of truth for targeted delivery and is only mutated
// through add/remove.
type ConnectionRegistry struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	userClients map[int]map[*Client]struct{}
	log         *log.Logger
}

func NewConnectionRegistry(logger *log.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		clients:     make(map[*Client]struct{}),
		userClients: make(map[int]map[*Client]struct{}),
		log:         logger,
	}
}

// add registers a live connection and reports whether it is the user's
// first one.
func (r *ConnectionRegistry) add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c] = struct{}{}
	if r.userClients[c.user.Id] == nil {
		r.userClients[c.user.Id] = make(map[*Client]struct{})
	}
	r.userClients[c.user.Id][c] = struct{}{}

	return len(r.userClients[c.user.Id]) == 1
}

// remove drops a connection and reports whether it was the user's last one.
// Removing an unknown connection is a no-op.
func (r *ConnectionRegistry) remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)

	userClients := r.userClients[c.user.Id]
	delete(userClients, c)
	if len(userClients) == 0 {
		delete(r.userClients, c.user.Id)
		return true
	}

	return false
}

func (r *ConnectionRegistry) clientsFor(userId int) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.userClients[userId]))
	for c := range r.userClients[userId] {
		clients = append(clients, c)
	}

	return clients
}

func (r *ConnectionRegistry) isOnline(userId int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.userClients[userId]) > 0
}

func (r *ConnectionRegistry) allClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}

	return clients
}

func (r *ConnectionRegistry) numClients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// broadcast delivers msg to every live connection except msg.SkipClient.
// Delivery is best-effort: a full send buffer drops the message for that
// connection only.
func (r *ConnectionRegistry) broadcast(msg *ServerMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.clients {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

// sendToUser delivers msg to every live connection of userId. Delivers
// nothing if the user is offline; that is not an error.
func (r *ConnectionRegistry) sendToUser(userId int, msg *ServerMessage) {
	for _, c := range r.clientsFor(userId) {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

// sendToUsers delivers msg to every live connection of each listed user.
func (r *ConnectionRegistry) sendToUsers(userIds []int, msg *ServerMessage) {
	for _, userId := range userIds {
		r.sendToUser(userId, msg)
	}
}
