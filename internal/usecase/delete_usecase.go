package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"directmsg/internal/entity"
	"directmsg/internal/repository"
)

type DeletionUsecase interface {
	// DeleteMessage tombstones a message its requester authored. Repeating
	// it on an already deleted message succeeds without side effects.
	DeleteMessage(ctx context.Context, requesterId, messageId string) error
}

type deletionUsecase struct {
	messageRepo repository.MessageRepository
	rosterUc    RosterUsecase
	broker      DeliveryBroker
	lock        *ConversationLock
	logger      *zap.Logger
}

func NewDeletionUsecase(messageRepo repository.MessageRepository, rosterUc RosterUsecase, broker DeliveryBroker, lock *ConversationLock, logger *zap.Logger) DeletionUsecase {
	return &deletionUsecase{
		messageRepo: messageRepo,
		rosterUc:    rosterUc,
		broker:      broker,
		lock:        lock,
		logger:      logger,
	}
}

func (u *deletionUsecase) DeleteMessage(ctx context.Context, requesterId, messageId string) error {
	message, err := u.messageRepo.Get(ctx, messageId)
	if errors.Is(err, repository.ErrMessageNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if message.SenderId != requesterId {
		return ErrForbidden
	}
	if message.Deleted {
		return nil
	}

	unlock := u.lock.Lock(message.ConversationKey())
	changed, err := u.messageRepo.MarkDeleted(ctx, messageId)
	if err != nil {
		unlock()
		return fmt.Errorf("delete message: %w", err)
	}
	if !changed {
		unlock()
		return nil
	}

	// Re-read under the lock so the unread recount sees a concurrent read.
	if current, err := u.messageRepo.Get(ctx, messageId); err == nil {
		message = current
	}
	err = u.rosterUc.OnDeleted(ctx, message)
	unlock()
	if err != nil {
		u.logger.Error("roster update after delete failed", zap.String("messageId", messageId), zap.Error(err))
	}

	u.broker.Notify(ctx, message.RecipientId, entity.Event{
		Event: entity.EventMessageDeleted,
		Data:  entity.MessageDeletedPayload{MessageId: messageId},
	})
	return nil
}
