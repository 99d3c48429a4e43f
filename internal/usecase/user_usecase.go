package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"directmsg/infrastructure/cache"
	"directmsg/internal/entity"
	"directmsg/internal/repository"
)

// UserUsecase resolves public profiles through the identity collaborator.
// Lookups never fail: an unknown or unreachable user degrades to an id-only
// profile.
type UserUsecase interface {
	Profile(ctx context.Context, userId string) entity.Profile
	Profiles(ctx context.Context, userIds []string) map[string]entity.Profile
}

type userUsecase struct {
	userRepo repository.UserRepository
	cache    *cache.MemCache
	ttl      time.Duration
	logger   *zap.Logger
}

func NewUserUseCase(userRepo repository.UserRepository, memCache *cache.MemCache, ttl time.Duration, logger *zap.Logger) UserUsecase {
	return &userUsecase{
		userRepo: userRepo,
		cache:    memCache,
		ttl:      ttl,
		logger:   logger,
	}
}

func profileKey(userId string) string {
	return "profile:" + userId
}

func (u *userUsecase) Profile(ctx context.Context, userId string) entity.Profile {
	return u.Profiles(ctx, []string{userId})[userId]
}

func (u *userUsecase) Profiles(ctx context.Context, userIds []string) map[string]entity.Profile {
	profiles := make(map[string]entity.Profile, len(userIds))

	var missing []string
	for _, id := range userIds {
		if _, seen := profiles[id]; seen {
			continue
		}
		if v, ok := u.cache.Get(profileKey(id)); ok {
			profiles[id] = v.(entity.Profile)
			continue
		}
		profiles[id] = entity.Profile{Id: id}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return profiles
	}

	found, err := u.userRepo.Index(ctx, entity.UserIndexFilter{Ids: missing})
	if err != nil {
		u.logger.Warn("profile lookup failed", zap.Strings("userIds", missing), zap.Error(err))
		return profiles
	}
	for _, p := range found {
		profiles[p.Id] = p
		u.cache.Set(profileKey(p.Id), p, u.ttl)
	}
	return profiles
}
