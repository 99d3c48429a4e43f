package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presenceTTL     = 90 * time.Second
	presenceRefresh = 30 * time.Second
	relayTimeout    = 3 * time.Second
)

// RedisHub keeps connections in a local Hub and publishes presence to Redis,
// so a user's connections on other servers can be reached through a relay
// channel per server.
//
// presence:<userId> is a hash of conn id -> server id.
// relay:<serverId> carries RelayMessage payloads for that server.
type RedisHub struct {
	*Hub

	redisClient *redis.Client
	pubsub      *redis.PubSub
	serverID    string
}

type RelayMessage struct {
	FromServerID string `json:"fromServerId"`
	ToConnID     string `json:"toConnId"`
	Payload      []byte `json:"payload"`
}

func presenceKey(userId string) string {
	return "presence:" + userId
}

func relayChannel(serverID string) string {
	return "relay:" + serverID
}

func NewRedisHub(ctx context.Context, rdb *redis.Client, serverID string, logger *zap.Logger) (*RedisHub, error) {
	pubsub := rdb.Subscribe(ctx, relayChannel(serverID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis hub: subscribe: %w", err)
	}

	return &RedisHub{
		Hub:         NewHub(logger.With(zap.String("serverId", serverID))),
		redisClient: rdb,
		pubsub:      pubsub,
		serverID:    serverID,
	}, nil
}

// Run relays messages addressed to this server and keeps presence fresh
// until ctx is done.
func (h *RedisHub) Run(ctx context.Context) {
	ch := h.pubsub.Channel()
	ticker := time.NewTicker(presenceRefresh)
	defer ticker.Stop()

	h.logger.Info("redis relay started")
	for {
		select {
		case <-ctx.Done():
			_ = h.pubsub.Close()
			return
		case <-ticker.C:
			h.refreshPresence(ctx)
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.relay(msg.Payload)
		}
	}
}

func (h *RedisHub) relay(raw string) {
	var msg RelayMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		h.logger.Warn("bad relay message", zap.Error(err))
		return
	}

	conn, ok := h.connection(msg.ToConnID)
	if !ok {
		return
	}
	if err := conn.Send(msg.Payload); err != nil {
		h.logger.Warn("relay to local connection failed", zap.String("connId", msg.ToConnID), zap.Error(err))
	}
}

func (h *RedisHub) RegisterClient(ctx context.Context, userId string, conn Connection) {
	h.Hub.RegisterClient(ctx, userId, conn)

	key := presenceKey(userId)
	_, err := h.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, conn.Id(), h.serverID)
		pipe.Expire(ctx, key, presenceTTL)
		return nil
	})
	if err != nil {
		h.logger.Warn("publish presence failed", zap.String("userId", userId), zap.Error(err))
	}
}

func (h *RedisHub) UnregisterClient(ctx context.Context, conn Connection) {
	h.Hub.mu.RLock()
	userId, ok := h.Hub.owners[conn.Id()]
	h.Hub.mu.RUnlock()

	h.Hub.UnregisterClient(ctx, conn)
	if !ok {
		return
	}
	if err := h.redisClient.HDel(ctx, presenceKey(userId), conn.Id()).Err(); err != nil {
		h.logger.Warn("remove presence failed", zap.String("userId", userId), zap.Error(err))
	}
}

// ConnectionsFor returns local connections plus relayed handles for
// connections on other servers. Redis errors degrade to local only.
func (h *RedisHub) ConnectionsFor(ctx context.Context, userId string) []Connection {
	conns := h.Hub.ConnectionsFor(ctx, userId)

	presence, err := h.redisClient.HGetAll(ctx, presenceKey(userId)).Result()
	if err != nil {
		h.logger.Warn("read presence failed", zap.String("userId", userId), zap.Error(err))
		return conns
	}
	for connId, serverID := range presence {
		if serverID == h.serverID {
			continue
		}
		conns = append(conns, &remoteConnection{
			hub:      h,
			id:       connId,
			userId:   userId,
			serverID: serverID,
		})
	}
	return conns
}

func (h *RedisHub) refreshPresence(ctx context.Context) {
	users := h.localUsers()
	if len(users) == 0 {
		return
	}
	_, err := h.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for userId, connIds := range users {
			key := presenceKey(userId)
			for _, connId := range connIds {
				pipe.HSet(ctx, key, connId, h.serverID)
			}
			pipe.Expire(ctx, key, presenceTTL)
		}
		return nil
	})
	if err != nil {
		h.logger.Warn("refresh presence failed", zap.Error(err))
	}
}

func (h *RedisHub) Close() error {
	return h.pubsub.Close()
}

// remoteConnection is a connection held by another server.
type remoteConnection struct {
	hub      *RedisHub
	id       string
	userId   string
	serverID string
}

func (c *remoteConnection) Id() string {
	return c.id
}

// Send publishes to the owning server. A server with no subscriber is
// treated as gone and its presence entry is dropped.
func (c *remoteConnection) Send(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()

	msg, err := json.Marshal(RelayMessage{
		FromServerID: c.hub.serverID,
		ToConnID:     c.id,
		Payload:      payload,
	})
	if err != nil {
		return err
	}

	receivers, err := c.hub.redisClient.Publish(ctx, relayChannel(c.serverID), msg).Result()
	if err != nil {
		return fmt.Errorf("relay to %s: %w", c.serverID, err)
	}
	if receivers == 0 {
		c.hub.redisClient.HDel(ctx, presenceKey(c.userId), c.id)
		return ErrConnectionClosed
	}
	return nil
}
