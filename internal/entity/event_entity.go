package entity

import "time"

// Push events, server to client.
const (
	EventMessageReceived = "message-received"
	EventMessagesRead    = "messages-read"
	EventMessageDeleted  = "message-deleted"

	// Replies to socket-originated requests.
	EventJoined      = "joined"
	EventMessageSent = "message-sent"
	EventSendFailed  = "send-failed"
	EventError       = "error"
)

type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type MessagesReadPayload struct {
	OtherUserId string    `json:"otherUserId"`
	ReadAt      time.Time `json:"readAt"`
	Count       int64     `json:"count"`
}

type MessageDeletedPayload struct {
	MessageId string `json:"messageId"`
}
