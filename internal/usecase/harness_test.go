package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"directmsg/infrastructure/cache"
	"directmsg/infrastructure/ws"
	"directmsg/internal/config"
	"directmsg/internal/entity"
	"directmsg/internal/metrics"
	"directmsg/internal/repository"
)

type pushed struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	raw   []byte
}

type recordingConn struct {
	id string

	mu     sync.Mutex
	events []pushed
	fail   error
}

func newConn(id string) *recordingConn {
	return &recordingConn{id: id}
}

func (c *recordingConn) Id() string { return c.id }

func (c *recordingConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	var p pushed
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	p.raw = payload
	c.events = append(c.events, p)
	return nil
}

func (c *recordingConn) received(event string) []pushed {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []pushed
	for _, e := range c.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (c *recordingConn) messages(t *testing.T) []entity.Message {
	t.Helper()
	var out []entity.Message
	for _, e := range c.received(entity.EventMessageReceived) {
		var m entity.Message
		require.NoError(t, json.Unmarshal(e.Data, &m))
		out = append(out, m)
	}
	return out
}

// failingMessageRepository fails every Create.
type failingMessageRepository struct {
	repository.MessageRepository
}

var errStoreDown = errors.New("store unavailable")

func (failingMessageRepository) Create(context.Context, entity.MessageDraft, time.Time) (entity.Message, error) {
	return entity.Message{}, errStoreDown
}

type harness struct {
	hub      *ws.Hub
	messages repository.MessageRepository
	roster   repository.RosterRepository
	users    repository.UserRepository
	metrics  *metrics.Metrics

	rosterUc RosterUsecase
	chat     ChatUsecase
}

type harnessOption func(h *harness, cfg *config.Chat)

func withMessageRepository(repo repository.MessageRepository) harnessOption {
	return func(h *harness, _ *config.Chat) { h.messages = repo }
}

func withChatConfig(mutate func(cfg *config.Chat)) harnessOption {
	return func(_ *harness, cfg *config.Chat) { mutate(cfg) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		hub:      ws.NewHub(zap.NewNop()),
		messages: repository.NewMemoryMessageRepository(),
		roster:   repository.NewMemoryRosterRepository(),
		users: repository.NewMemoryUserRepository(
			entity.Profile{Id: "alice", Username: "alice", Name: "Alice"},
			entity.Profile{Id: "bob", Username: "bob", Name: "Bob"},
		),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	cfg := config.Chat{MaxContentLength: 2000, ProfileCacheTTL: time.Minute, SendBuffer: 16}
	for _, opt := range opts {
		opt(h, &cfg)
	}

	logger := zap.NewNop()
	memCache := cache.NewMemCache(0)
	t.Cleanup(memCache.Close)

	lock := NewConversationLock()
	broker := NewDeliveryBroker(h.hub, h.metrics, logger)
	userUc := NewUserUseCase(h.users, memCache, cfg.ProfileCacheTTL, logger)
	h.rosterUc = NewRosterUsecase(h.roster, h.messages, userUc)

	h.chat = NewChatUsecase(
		NewMessageUseCase(h.messages, h.rosterUc, broker, lock, memCache, cfg, h.metrics, logger),
		h.rosterUc,
		NewReadReceiptUsecase(h.messages, h.rosterUc, broker, lock, logger),
		NewDeletionUsecase(h.messages, h.rosterUc, broker, lock, logger),
	)
	return h
}

func (h *harness) connect(userId, connId string) *recordingConn {
	conn := newConn(connId)
	h.hub.RegisterClient(context.Background(), userId, conn)
	return conn
}

func (h *harness) send(t *testing.T, from, to, content string) entity.Message {
	t.Helper()
	m, err := h.chat.Send(context.Background(), entity.MessageDraft{SenderId: from, RecipientId: to, Content: content})
	require.NoError(t, err)
	return m
}

func (h *harness) entry(t *testing.T, ownerId, otherUserId string) entity.RosterEntry {
	t.Helper()
	entries, err := h.chat.ListConversations(context.Background(), ownerId)
	require.NoError(t, err)
	for _, e := range entries {
		if e.OtherUserId == otherUserId {
			return e
		}
	}
	t.Fatalf("no roster entry %s -> %s", ownerId, otherUserId)
	return entity.RosterEntry{}
}

// storeUnread is the source of truth the roster's unread count caches.
func (h *harness) storeUnread(t *testing.T, ownerId, otherUserId string) int64 {
	t.Helper()
	n, err := h.messages.CountUnread(context.Background(), otherUserId, ownerId)
	require.NoError(t, err)
	return n
}

func strPtr(s string) *string {
	return &s
}
