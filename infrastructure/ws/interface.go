package ws

import (
	"context"
	"errors"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("connection send buffer full")
)

// Connection is one live channel to a client instance.
type Connection interface {
	Id() string
	// Send queues payload for the client. It must not block.
	Send(payload []byte) error
}

// IHub is the connection registry. A user may hold any number of
// connections; an unknown user simply has none.
type IHub interface {
	RegisterClient(ctx context.Context, userId string, conn Connection)
	// UnregisterClient is a no-op for connections that are not registered.
	UnregisterClient(ctx context.Context, conn Connection)
	ConnectionsFor(ctx context.Context, userId string) []Connection
	GetClientCount() int
	SetOnClientUnregister(callback func(userId string, conn Connection))
}
