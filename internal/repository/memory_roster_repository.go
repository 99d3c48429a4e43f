package repository

import (
	"context"
	"sync"
	"sync/atomic"

	"directmsg/internal/entity"
)

type rosterSlot struct {
	mu    sync.Mutex
	entry entity.RosterEntry
}

type memoryRoster struct {
	mu      sync.RWMutex
	entries map[string]*rosterSlot // other user id -> slot
}

type memoryRosterRepository struct {
	owners  sync.Map // owner id -> *memoryRoster
	touches atomic.Int64
}

// NewMemoryRosterRepository returns a process-local roster. Each entry has
// its own lock, so updates to different pairs never contend.
func NewMemoryRosterRepository() RosterRepository {
	return &memoryRosterRepository{}
}

func (r *memoryRosterRepository) roster(ownerId string) *memoryRoster {
	actual, _ := r.owners.LoadOrStore(ownerId, &memoryRoster{entries: make(map[string]*rosterSlot)})
	return actual.(*memoryRoster)
}

func (r *memoryRosterRepository) slot(ownerId, otherUserId string, create bool) *rosterSlot {
	roster := r.roster(ownerId)

	roster.mu.RLock()
	slot, ok := roster.entries[otherUserId]
	roster.mu.RUnlock()
	if ok || !create {
		return slot
	}

	roster.mu.Lock()
	defer roster.mu.Unlock()
	if slot, ok = roster.entries[otherUserId]; ok {
		return slot
	}
	slot = &rosterSlot{entry: entity.RosterEntry{OwnerId: ownerId, OtherUserId: otherUserId}}
	roster.entries[otherUserId] = slot
	return slot
}

func (r *memoryRosterRepository) Index(_ context.Context, ownerId string) ([]entity.RosterEntry, error) {
	roster := r.roster(ownerId)

	roster.mu.RLock()
	slots := make([]*rosterSlot, 0, len(roster.entries))
	for _, slot := range roster.entries {
		slots = append(slots, slot)
	}
	roster.mu.RUnlock()

	entries := make([]entity.RosterEntry, 0, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		entries = append(entries, copyEntry(slot.entry))
		slot.mu.Unlock()
	}

	SortRoster(entries)
	return entries, nil
}

func (r *memoryRosterRepository) Get(_ context.Context, ownerId, otherUserId string) (entity.RosterEntry, error) {
	slot := r.slot(ownerId, otherUserId, false)
	if slot == nil {
		return entity.RosterEntry{}, ErrRosterEntryNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	return copyEntry(slot.entry), nil
}

func (r *memoryRosterRepository) Touch(_ context.Context, ownerId, otherUserId string, last entity.Message, unreadDelta int64) (entity.RosterEntry, error) {
	slot := r.slot(ownerId, otherUserId, true)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.entry.LastMessage == nil || last.Seq >= slot.entry.LastMessage.Seq {
		lm := last
		lm.TempId = ""
		slot.entry.LastMessage = &lm
	}
	slot.entry.UnreadCount += unreadDelta
	slot.entry.TouchedAt = r.touches.Add(1)

	return copyEntry(slot.entry), nil
}

func (r *memoryRosterRepository) SetUnread(_ context.Context, ownerId, otherUserId string, count int64) (entity.RosterEntry, error) {
	slot := r.slot(ownerId, otherUserId, false)
	if slot == nil {
		return entity.RosterEntry{}, ErrRosterEntryNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.entry.UnreadCount = count
	return copyEntry(slot.entry), nil
}

func (r *memoryRosterRepository) SetLastMessage(_ context.Context, ownerId, otherUserId string, last *entity.Message) (entity.RosterEntry, error) {
	slot := r.slot(ownerId, otherUserId, false)
	if slot == nil {
		return entity.RosterEntry{}, ErrRosterEntryNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if last == nil {
		slot.entry.LastMessage = nil
	} else {
		lm := *last
		slot.entry.LastMessage = &lm
	}
	return copyEntry(slot.entry), nil
}

func copyEntry(e entity.RosterEntry) entity.RosterEntry {
	if e.LastMessage != nil {
		lm := *e.LastMessage
		e.LastMessage = &lm
	}
	return e
}
