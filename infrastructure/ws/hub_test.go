package ws

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	id string

	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) Id() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.payloads...)
}

func connIds(conns []Connection) []string {
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.Id())
	}
	sort.Strings(ids)
	return ids
}

func TestHub_MultipleConnectionsPerUser(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(zap.NewNop())

	phone, web := newFakeConn("phone"), newFakeConn("web")
	hub.RegisterClient(ctx, "alice", phone)
	hub.RegisterClient(ctx, "alice", web)
	hub.RegisterClient(ctx, "bob", newFakeConn("bob-1"))

	assert.Equal(t, []string{"phone", "web"}, connIds(hub.ConnectionsFor(ctx, "alice")))
	assert.Equal(t, 3, hub.GetClientCount())

	hub.UnregisterClient(ctx, phone)
	assert.Equal(t, []string{"web"}, connIds(hub.ConnectionsFor(ctx, "alice")))
}

func TestHub_UnknownUserHasNoConnections(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conns := hub.ConnectionsFor(context.Background(), "nobody")
	assert.NotNil(t, conns)
	assert.Empty(t, conns)
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(zap.NewNop())

	var calls int
	hub.SetOnClientUnregister(func(userId string, conn Connection) {
		calls++
		assert.Equal(t, "alice", userId)
	})

	conn := newFakeConn("c1")
	hub.RegisterClient(ctx, "alice", conn)
	hub.UnregisterClient(ctx, conn)
	hub.UnregisterClient(ctx, conn)
	hub.UnregisterClient(ctx, newFakeConn("never-registered"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, hub.GetClientCount())
}

func TestHub_RejoinMovesConnection(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(zap.NewNop())

	conn := newFakeConn("c1")
	hub.RegisterClient(ctx, "alice", conn)
	hub.RegisterClient(ctx, "bob", conn)

	assert.Empty(t, hub.ConnectionsFor(ctx, "alice"))
	assert.Equal(t, []string{"c1"}, connIds(hub.ConnectionsFor(ctx, "bob")))
	assert.Equal(t, 1, hub.GetClientCount())
}

func TestHub_ConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(zap.NewNop())

	var wg sync.WaitGroup
	conns := make([]*fakeConn, 50)
	for i := range conns {
		conns[i] = newFakeConn(string(rune('a'+i%26)) + string(rune('0'+i/26)))
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			hub.RegisterClient(ctx, "alice", c)
		}(conns[i])
	}
	wg.Wait()
	require.Len(t, hub.ConnectionsFor(ctx, "alice"), 50)

	for _, c := range conns {
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			hub.UnregisterClient(ctx, c)
		}(c)
	}
	wg.Wait()
	assert.Empty(t, hub.ConnectionsFor(ctx, "alice"))
}
