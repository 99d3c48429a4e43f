package repository

import (
	"context"
	"sync"

	"directmsg/internal/entity"
)

type memoryUserRepository struct {
	mu       sync.RWMutex
	profiles map[string]entity.Profile
}

// NewMemoryUserRepository serves profiles from a fixed set, for development
// and tests. Put adds or replaces one.
func NewMemoryUserRepository(profiles ...entity.Profile) *memoryUserRepository {
	r := &memoryUserRepository{profiles: make(map[string]entity.Profile, len(profiles))}
	for _, p := range profiles {
		r.profiles[p.Id] = p
	}
	return r
}

func (r *memoryUserRepository) Put(profile entity.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.Id] = profile
}

func (r *memoryUserRepository) Get(_ context.Context, userId string) (entity.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userId]
	if !ok {
		return entity.Profile{}, ErrUserNotFound
	}
	return p, nil
}

func (r *memoryUserRepository) Index(_ context.Context, filter entity.UserIndexFilter) ([]entity.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]entity.Profile, 0, len(filter.Ids))
	for _, id := range filter.Ids {
		if p, ok := r.profiles[id]; ok {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}
