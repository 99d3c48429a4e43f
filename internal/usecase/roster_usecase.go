package usecase

import (
	"context"
	"errors"
	"fmt"

	"directmsg/internal/entity"
	"directmsg/internal/repository"
)

// RosterUsecase maintains each user's conversation summaries. Unread counts
// are a cache over the message store; callers hold the conversation lock so
// a pair's entries never drift from it.
type RosterUsecase interface {
	OnMessageSent(ctx context.Context, message entity.Message) error
	OnRead(ctx context.Context, ownerId, otherUserId string) (entity.RosterEntry, error)
	OnDeleted(ctx context.Context, message entity.Message) error
	ListFor(ctx context.Context, ownerId string) ([]entity.RosterEntry, error)
}

type rosterUsecase struct {
	rosterRepo  repository.RosterRepository
	messageRepo repository.MessageRepository
	userUc      UserUsecase
}

func NewRosterUsecase(rosterRepo repository.RosterRepository, messageRepo repository.MessageRepository, userUc UserUsecase) RosterUsecase {
	return &rosterUsecase{
		rosterRepo:  rosterRepo,
		messageRepo: messageRepo,
		userUc:      userUc,
	}
}

// OnMessageSent advances both parties' entries. Only the recipient's unread
// count moves; a recipient with the chat open zeroes it with its own read.
func (r *rosterUsecase) OnMessageSent(ctx context.Context, message entity.Message) error {
	if _, err := r.rosterRepo.Touch(ctx, message.SenderId, message.RecipientId, message, 0); err != nil {
		return fmt.Errorf("roster: touch sender entry: %w", err)
	}
	if _, err := r.rosterRepo.Touch(ctx, message.RecipientId, message.SenderId, message, 1); err != nil {
		return fmt.Errorf("roster: touch recipient entry: %w", err)
	}
	return nil
}

// OnRead zeroes the owner's unread count. A pair with no conversation yet
// yields an empty entry rather than an error.
func (r *rosterUsecase) OnRead(ctx context.Context, ownerId, otherUserId string) (entity.RosterEntry, error) {
	entry, err := r.rosterRepo.SetUnread(ctx, ownerId, otherUserId, 0)
	if errors.Is(err, repository.ErrRosterEntryNotFound) {
		entry = entity.RosterEntry{OwnerId: ownerId, OtherUserId: otherUserId}
	} else if err != nil {
		return entity.RosterEntry{}, fmt.Errorf("roster: reset unread: %w", err)
	}

	entry.OtherUser = r.userUc.Profile(ctx, otherUserId)
	return entry, nil
}

// OnDeleted repoints entries whose last message was deleted and recounts
// the recipient's unread messages if the deleted one was still unread.
func (r *rosterUsecase) OnDeleted(ctx context.Context, message entity.Message) error {
	var latest *entity.Message
	var latestLoaded bool

	views := [][2]string{
		{message.SenderId, message.RecipientId},
		{message.RecipientId, message.SenderId},
	}
	for _, view := range views {
		ownerId, otherUserId := view[0], view[1]

		entry, err := r.rosterRepo.Get(ctx, ownerId, otherUserId)
		if errors.Is(err, repository.ErrRosterEntryNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("roster: get entry: %w", err)
		}
		if entry.LastMessage == nil || entry.LastMessage.Id != message.Id {
			continue
		}

		if !latestLoaded {
			latest, err = r.messageRepo.Latest(ctx, message.SenderId, message.RecipientId)
			if err != nil {
				return fmt.Errorf("roster: load latest message: %w", err)
			}
			latestLoaded = true
		}
		if _, err := r.rosterRepo.SetLastMessage(ctx, ownerId, otherUserId, latest); err != nil {
			return fmt.Errorf("roster: set last message: %w", err)
		}
	}

	if message.ReadAt != nil {
		return nil
	}
	unread, err := r.messageRepo.CountUnread(ctx, message.SenderId, message.RecipientId)
	if err != nil {
		return fmt.Errorf("roster: count unread: %w", err)
	}
	_, err = r.rosterRepo.SetUnread(ctx, message.RecipientId, message.SenderId, unread)
	if err != nil && !errors.Is(err, repository.ErrRosterEntryNotFound) {
		return fmt.Errorf("roster: set unread: %w", err)
	}
	return nil
}

func (r *rosterUsecase) ListFor(ctx context.Context, ownerId string) ([]entity.RosterEntry, error) {
	entries, err := r.rosterRepo.Index(ctx, ownerId)
	if err != nil {
		return nil, fmt.Errorf("roster: list: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.OtherUserId)
	}
	profiles := r.userUc.Profiles(ctx, ids)
	for i := range entries {
		entries[i].OtherUser = profiles[entries[i].OtherUserId]
	}
	return entries, nil
}
