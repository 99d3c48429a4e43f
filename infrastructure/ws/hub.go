package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Hub is the single-process connection registry.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[string]Connection // user id -> conn id -> conn
	owners  map[string]string                // conn id -> user id
	logger  *zap.Logger

	OnClientUnregister func(userId string, conn Connection)
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[string]Connection),
		owners:  make(map[string]string),
		logger:  logger,
	}
}

// RegisterClient binds conn to userId. Re-registering a connection under a
// different user moves it.
func (h *Hub) RegisterClient(_ context.Context, userId string, conn Connection) {
	h.mu.Lock()
	if prev, ok := h.owners[conn.Id()]; ok && prev != userId {
		h.remove(prev, conn.Id())
	}
	conns, ok := h.clients[userId]
	if !ok {
		conns = make(map[string]Connection)
		h.clients[userId] = conns
	}
	conns[conn.Id()] = conn
	h.owners[conn.Id()] = userId
	h.mu.Unlock()

	h.logger.Debug("connection registered", zap.String("userId", userId), zap.String("connId", conn.Id()))
}

func (h *Hub) UnregisterClient(_ context.Context, conn Connection) {
	h.mu.Lock()
	userId, ok := h.owners[conn.Id()]
	if ok {
		h.remove(userId, conn.Id())
	}
	callback := h.OnClientUnregister
	h.mu.Unlock()

	if !ok {
		return
	}
	h.logger.Debug("connection unregistered", zap.String("userId", userId), zap.String("connId", conn.Id()))
	if callback != nil {
		callback(userId, conn)
	}
}

// remove must be called with mu held.
func (h *Hub) remove(userId, connId string) {
	delete(h.owners, connId)
	conns := h.clients[userId]
	delete(conns, connId)
	if len(conns) == 0 {
		delete(h.clients, userId)
	}
}

func (h *Hub) ConnectionsFor(_ context.Context, userId string) []Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]Connection, 0, len(h.clients[userId]))
	for _, conn := range h.clients[userId] {
		conns = append(conns, conn)
	}
	return conns
}

// connection looks up a local connection by id.
func (h *Hub) connection(connId string) (Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userId, ok := h.owners[connId]
	if !ok {
		return nil, false
	}
	conn, ok := h.clients[userId][connId]
	return conn, ok
}

// localUsers returns the users with at least one connection on this node.
func (h *Hub) localUsers() map[string][]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make(map[string][]string, len(h.clients))
	for userId, conns := range h.clients {
		ids := make([]string, 0, len(conns))
		for connId := range conns {
			ids = append(ids, connId)
		}
		users[userId] = ids
	}
	return users
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners)
}

func (h *Hub) SetOnClientUnregister(callback func(userId string, conn Connection)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.OnClientUnregister = callback
}
