package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"directmsg/infrastructure/cache"
	"directmsg/internal/config"
	"directmsg/internal/entity"
	"directmsg/internal/metrics"
	"directmsg/internal/repository"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("too many messages")
	ErrTransientDelivery = errors.New("transient delivery failure")
)

const limiterIdleTTL = 10 * time.Minute

type MessageUsecase interface {
	// Send persists the draft and returns the canonical message. Only
	// persistence failures are returned once validation passes.
	Send(ctx context.Context, draft entity.MessageDraft) (entity.Message, error)
	List(ctx context.Context, ownerId, otherUserId string, filter entity.MessageIndexFilter) ([]entity.Message, error)
}

type messageUsecase struct {
	messageRepo repository.MessageRepository
	rosterUc    RosterUsecase
	broker      DeliveryBroker
	lock        *ConversationLock
	limiters    *cache.MemCache
	cfg         config.Chat
	metrics     *metrics.Metrics
	logger      *zap.Logger
	clock       func() time.Time
}

func NewMessageUseCase(
	messageRepo repository.MessageRepository,
	rosterUc RosterUsecase,
	broker DeliveryBroker,
	lock *ConversationLock,
	limiters *cache.MemCache,
	cfg config.Chat,
	m *metrics.Metrics,
	logger *zap.Logger,
) MessageUsecase {
	return &messageUsecase{
		messageRepo: messageRepo,
		rosterUc:    rosterUc,
		broker:      broker,
		lock:        lock,
		limiters:    limiters,
		cfg:         cfg,
		metrics:     m,
		logger:      logger,
		clock:       time.Now,
	}
}

func (u *messageUsecase) Send(ctx context.Context, draft entity.MessageDraft) (entity.Message, error) {
	draft = normalizeDraft(draft)
	if err := u.validate(draft); err != nil {
		u.metrics.SendFailures.WithLabelValues("validation").Inc()
		return entity.Message{}, err
	}
	if !u.allow(draft.SenderId) {
		u.metrics.SendFailures.WithLabelValues("rate_limited").Inc()
		return entity.Message{}, ErrRateLimited
	}

	// Held through the push so every connection sees a conversation's
	// messages in store order.
	unlock := u.lock.Lock(entity.ConversationKey(draft.SenderId, draft.RecipientId))
	defer unlock()

	message, err := u.messageRepo.Create(ctx, draft, u.clock())
	if err != nil {
		u.metrics.SendFailures.WithLabelValues("store").Inc()
		return entity.Message{}, fmt.Errorf("persist message: %w", err)
	}
	u.metrics.MessagesSent.Inc()

	// The message is durable at this point; failing the send would make the
	// client roll back something that exists.
	if err := u.rosterUc.OnMessageSent(ctx, message); err != nil {
		u.logger.Error("roster update after send failed",
			zap.String("messageId", message.Id),
			zap.String("senderId", message.SenderId),
			zap.String("recipientId", message.RecipientId),
			zap.Error(err),
		)
	}

	u.broker.Deliver(ctx, message, draft.OriginConnId)
	return message, nil
}

func (u *messageUsecase) List(ctx context.Context, ownerId, otherUserId string, filter entity.MessageIndexFilter) ([]entity.Message, error) {
	if otherUserId == "" || otherUserId == ownerId {
		return nil, fmt.Errorf("%w: invalid conversation partner", ErrValidation)
	}
	if filter.BeforeSeq < 0 {
		return nil, fmt.Errorf("%w: before must not be negative", ErrValidation)
	}

	messages, err := u.messageRepo.Index(ctx, ownerId, otherUserId, filter)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (u *messageUsecase) validate(draft entity.MessageDraft) error {
	if draft.RecipientId == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if draft.RecipientId == draft.SenderId {
		return fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}

	hasRef := draft.SharedReviewRef != nil || draft.SharedDiscussionRef != nil
	if strings.TrimSpace(draft.Content) == "" && !hasRef {
		return fmt.Errorf("%w: content cannot be empty", ErrValidation)
	}
	if utf8.RuneCountInString(draft.Content) > u.cfg.MaxContentLength {
		return fmt.Errorf("%w: content exceeds maximum length of %d characters", ErrValidation, u.cfg.MaxContentLength)
	}
	return nil
}

func (u *messageUsecase) allow(senderId string) bool {
	if u.cfg.SendRatePerSecond <= 0 {
		return true
	}
	limiter := u.limiters.GetOrSet("send:"+senderId, limiterIdleTTL, func() any {
		return rate.NewLimiter(rate.Limit(u.cfg.SendRatePerSecond), u.cfg.SendBurst)
	}).(*rate.Limiter)
	return limiter.Allow()
}

func normalizeDraft(draft entity.MessageDraft) entity.MessageDraft {
	if draft.SharedReviewRef != nil && *draft.SharedReviewRef == "" {
		draft.SharedReviewRef = nil
	}
	if draft.SharedDiscussionRef != nil && *draft.SharedDiscussionRef == "" {
		draft.SharedDiscussionRef = nil
	}
	return draft
}
