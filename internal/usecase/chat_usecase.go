package usecase

import (
	"context"

	"directmsg/internal/entity"
)

// ChatUsecase is the request/response surface clients use, independent of
// transport.
type ChatUsecase interface {
	ListConversations(ctx context.Context, ownerId string) ([]entity.RosterEntry, error)
	ListMessages(ctx context.Context, ownerId, otherUserId string, filter entity.MessageIndexFilter) ([]entity.Message, error)
	Send(ctx context.Context, draft entity.MessageDraft) (entity.Message, error)
	MarkRead(ctx context.Context, readerId, otherUserId string) (entity.RosterEntry, error)
	DeleteMessage(ctx context.Context, requesterId, messageId string) error
}

type chatUsecase struct {
	messageUc MessageUsecase
	rosterUc  RosterUsecase
	readUc    ReadReceiptUsecase
	deleteUc  DeletionUsecase
}

func NewChatUsecase(messageUc MessageUsecase, rosterUc RosterUsecase, readUc ReadReceiptUsecase, deleteUc DeletionUsecase) ChatUsecase {
	return &chatUsecase{
		messageUc: messageUc,
		rosterUc:  rosterUc,
		readUc:    readUc,
		deleteUc:  deleteUc,
	}
}

func (c *chatUsecase) ListConversations(ctx context.Context, ownerId string) ([]entity.RosterEntry, error) {
	return c.rosterUc.ListFor(ctx, ownerId)
}

func (c *chatUsecase) ListMessages(ctx context.Context, ownerId, otherUserId string, filter entity.MessageIndexFilter) ([]entity.Message, error) {
	return c.messageUc.List(ctx, ownerId, otherUserId, filter)
}

func (c *chatUsecase) Send(ctx context.Context, draft entity.MessageDraft) (entity.Message, error) {
	return c.messageUc.Send(ctx, draft)
}

func (c *chatUsecase) MarkRead(ctx context.Context, readerId, otherUserId string) (entity.RosterEntry, error) {
	return c.readUc.MarkRead(ctx, readerId, otherUserId)
}

func (c *chatUsecase) DeleteMessage(ctx context.Context, requesterId, messageId string) error {
	return c.deleteUc.DeleteMessage(ctx, requesterId, messageId)
}
