package entity

import "time"

// RosterEntry summarises one conversation from the owner's point of view.
type RosterEntry struct {
	OwnerId     string   `bson:"ownerId" json:"-" db:"owner_id"`
	OtherUserId string   `bson:"otherUserId" json:"otherUserId" db:"other_user_id"`
	OtherUser   Profile  `bson:"-" json:"otherUser" db:"-"`
	LastMessage *Message `bson:"lastMessage" json:"lastMessage"`
	UnreadCount int64    `bson:"unreadCount" json:"unreadCount" db:"unread_count"`

	// TouchedAt orders entries whose last messages share a timestamp.
	TouchedAt int64 `bson:"touchedAt" json:"-" db:"touched_at"`
}

// OrderKey is the roster sort key; entries without a visible message sort last.
func (e RosterEntry) OrderKey() time.Time {
	if e.LastMessage == nil {
		return time.Time{}
	}
	return e.LastMessage.CreatedAt
}
