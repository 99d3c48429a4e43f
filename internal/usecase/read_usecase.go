package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"directmsg/internal/entity"
	"directmsg/internal/repository"
)

type ReadReceiptUsecase interface {
	// MarkRead stamps every unread message otherUserId sent to readerId and
	// zeroes the reader's unread count. Calling it with nothing unread is a
	// no-op.
	MarkRead(ctx context.Context, readerId, otherUserId string) (entity.RosterEntry, error)
}

type readReceiptUsecase struct {
	messageRepo repository.MessageRepository
	rosterUc    RosterUsecase
	broker      DeliveryBroker
	lock        *ConversationLock
	logger      *zap.Logger
	clock       func() time.Time
}

func NewReadReceiptUsecase(messageRepo repository.MessageRepository, rosterUc RosterUsecase, broker DeliveryBroker, lock *ConversationLock, logger *zap.Logger) ReadReceiptUsecase {
	return &readReceiptUsecase{
		messageRepo: messageRepo,
		rosterUc:    rosterUc,
		broker:      broker,
		lock:        lock,
		logger:      logger,
		clock:       time.Now,
	}
}

func (u *readReceiptUsecase) MarkRead(ctx context.Context, readerId, otherUserId string) (entity.RosterEntry, error) {
	if otherUserId == "" || otherUserId == readerId {
		return entity.RosterEntry{}, fmt.Errorf("%w: invalid conversation partner", ErrValidation)
	}

	readAt := u.clock().UTC()

	unlock := u.lock.Lock(entity.ConversationKey(readerId, otherUserId))
	changed, err := u.messageRepo.MarkRead(ctx, otherUserId, readerId, readAt)
	if err != nil {
		unlock()
		return entity.RosterEntry{}, fmt.Errorf("mark read: %w", err)
	}
	entry, err := u.rosterUc.OnRead(ctx, readerId, otherUserId)
	unlock()
	if err != nil {
		return entity.RosterEntry{}, err
	}

	if changed > 0 {
		u.logger.Debug("messages read",
			zap.String("readerId", readerId),
			zap.String("senderId", otherUserId),
			zap.Int64("count", changed),
		)
		u.broker.Notify(ctx, otherUserId, entity.Event{
			Event: entity.EventMessagesRead,
			Data: entity.MessagesReadPayload{
				OtherUserId: readerId,
				ReadAt:      readAt,
				Count:       changed,
			},
		})
	}
	return entry, nil
}
