package entity

import (
	"strings"
	"time"
)

type Message struct {
	Id                  string     `bson:"_id" json:"id" db:"id"`
	SenderId            string     `bson:"senderId" json:"senderId" db:"sender_id"`
	RecipientId         string     `bson:"recipientId" json:"recipientId" db:"recipient_id"`
	Content             string     `bson:"content" json:"content" db:"content"`
	SharedReviewRef     *string    `bson:"sharedReviewRef,omitempty" json:"sharedReviewRef,omitempty" db:"shared_review_ref"`
	SharedDiscussionRef *string    `bson:"sharedDiscussionRef,omitempty" json:"sharedDiscussionRef,omitempty" db:"shared_discussion_ref"`
	Seq                 int64      `bson:"seq" json:"seq" db:"seq"`
	CreatedAt           time.Time  `bson:"createdAt" json:"createdAt" db:"created_at"`
	ReadAt              *time.Time `bson:"readAt" json:"readAt" db:"read_at"`
	Deleted             bool       `bson:"deleted" json:"-" db:"deleted"`

	// TempId is echoed back to the author so it can reconcile its pending entry.
	TempId string `bson:"-" json:"tempId,omitempty" db:"-"`
}

// ConversationKey identifies the unordered pair of participants.
func (m Message) ConversationKey() string {
	return ConversationKey(m.SenderId, m.RecipientId)
}

// Counterpart returns the participant that is not userId.
func (m Message) Counterpart(userId string) string {
	if m.SenderId == userId {
		return m.RecipientId
	}
	return m.SenderId
}

func (m Message) Involves(userId string) bool {
	return m.SenderId == userId || m.RecipientId == userId
}

// ConversationKey is symmetric: ConversationKey(a, b) == ConversationKey(b, a).
func ConversationKey(userA, userB string) string {
	if strings.Compare(userA, userB) > 0 {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

// MessageDraft is a send request before the store assigns identity and order.
type MessageDraft struct {
	SenderId            string  `json:"senderId"`
	RecipientId         string  `json:"recipientId"`
	Content             string  `json:"content"`
	SharedReviewRef     *string `json:"sharedReviewRef,omitempty"`
	SharedDiscussionRef *string `json:"sharedDiscussionRef,omitempty"`
	TempId              string  `json:"tempId,omitempty"`

	// OriginConnId is the live connection the send came from, if any.
	OriginConnId string `json:"-"`
}

type MessageIndexFilter struct {
	Limit     int   `bson:"limit"`
	BeforeSeq int64 `bson:"beforeSeq"`
}
