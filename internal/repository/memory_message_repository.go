package repository

import (
	"context"
	"sync"
	"time"

	"directmsg/internal/entity"
)

// memoryConversation holds one conversation's messages in seq order.
type memoryConversation struct {
	mu       sync.Mutex
	seq      int64
	lastAt   time.Time
	messages []*entity.Message
}

type memoryMessageRepository struct {
	conversations sync.Map // conversation key -> *memoryConversation
	index         sync.Map // message id -> conversation key
}

// NewMemoryMessageRepository returns a process-local message store. Creates
// are serialised per conversation only.
func NewMemoryMessageRepository() MessageRepository {
	return &memoryMessageRepository{}
}

func (r *memoryMessageRepository) conversation(userA, userB string) *memoryConversation {
	key := entity.ConversationKey(userA, userB)
	actual, _ := r.conversations.LoadOrStore(key, &memoryConversation{})
	return actual.(*memoryConversation)
}

func (r *memoryMessageRepository) Create(_ context.Context, draft entity.MessageDraft, now time.Time) (entity.Message, error) {
	conv := r.conversation(draft.SenderId, draft.RecipientId)

	conv.mu.Lock()
	defer conv.mu.Unlock()

	conv.seq++
	if now.After(conv.lastAt) {
		conv.lastAt = now
	}

	message := newMessage(draft, conv.seq, conv.lastAt)
	stored := message
	stored.TempId = ""
	conv.messages = append(conv.messages, &stored)
	r.index.Store(message.Id, message.ConversationKey())

	return message, nil
}

func (r *memoryMessageRepository) lookup(messageId string) (*memoryConversation, bool) {
	key, ok := r.index.Load(messageId)
	if !ok {
		return nil, false
	}
	conv, ok := r.conversations.Load(key)
	if !ok {
		return nil, false
	}
	return conv.(*memoryConversation), true
}

func (c *memoryConversation) find(messageId string) *entity.Message {
	for _, m := range c.messages {
		if m.Id == messageId {
			return m
		}
	}
	return nil
}

func (r *memoryMessageRepository) Get(_ context.Context, messageId string) (entity.Message, error) {
	conv, ok := r.lookup(messageId)
	if !ok {
		return entity.Message{}, ErrMessageNotFound
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	m := conv.find(messageId)
	if m == nil {
		return entity.Message{}, ErrMessageNotFound
	}
	return *m, nil
}

func (r *memoryMessageRepository) Index(_ context.Context, userA, userB string, filter entity.MessageIndexFilter) ([]entity.Message, error) {
	conv := r.conversation(userA, userB)
	limit := PageSize(filter.Limit)

	conv.mu.Lock()
	defer conv.mu.Unlock()

	messages := make([]entity.Message, 0)
	for i := len(conv.messages) - 1; i >= 0 && len(messages) < limit; i-- {
		m := conv.messages[i]
		if m.Deleted {
			continue
		}
		if filter.BeforeSeq > 0 && m.Seq >= filter.BeforeSeq {
			continue
		}
		messages = append(messages, *m)
	}

	reverse(messages)
	return messages, nil
}

func (r *memoryMessageRepository) Latest(_ context.Context, userA, userB string) (*entity.Message, error) {
	conv := r.conversation(userA, userB)

	conv.mu.Lock()
	defer conv.mu.Unlock()

	for i := len(conv.messages) - 1; i >= 0; i-- {
		if m := conv.messages[i]; !m.Deleted {
			latest := *m
			return &latest, nil
		}
	}
	return nil, nil
}

func (r *memoryMessageRepository) MarkRead(_ context.Context, senderId, recipientId string, at time.Time) (int64, error) {
	conv := r.conversation(senderId, recipientId)

	conv.mu.Lock()
	defer conv.mu.Unlock()

	var n int64
	for _, m := range conv.messages {
		if m.SenderId != senderId || m.ReadAt != nil || m.Deleted {
			continue
		}
		readAt := at
		m.ReadAt = &readAt
		n++
	}
	return n, nil
}

func (r *memoryMessageRepository) MarkDeleted(_ context.Context, messageId string) (bool, error) {
	conv, ok := r.lookup(messageId)
	if !ok {
		return false, ErrMessageNotFound
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	m := conv.find(messageId)
	if m == nil {
		return false, ErrMessageNotFound
	}
	if m.Deleted {
		return false, nil
	}
	m.Deleted = true
	return true, nil
}

func (r *memoryMessageRepository) CountUnread(_ context.Context, senderId, recipientId string) (int64, error) {
	conv := r.conversation(senderId, recipientId)

	conv.mu.Lock()
	defer conv.mu.Unlock()

	var n int64
	for _, m := range conv.messages {
		if m.SenderId == senderId && m.ReadAt == nil && !m.Deleted {
			n++
		}
	}
	return n, nil
}
