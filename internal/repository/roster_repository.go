package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"directmsg/internal/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrRosterEntryNotFound = errors.New("roster entry not found")
)

// RosterRepository stores one summary per (owner, other user) pair. Every
// mutation is atomic with respect to other mutations of the same pair.
type RosterRepository interface {
	// Index returns the owner's entries, most recent first.
	Index(ctx context.Context, ownerId string) ([]entity.RosterEntry, error)
	Get(ctx context.Context, ownerId, otherUserId string) (entity.RosterEntry, error)
	// Touch upserts the entry, adds unreadDelta, and advances lastMessage
	// unless the stored one is newer.
	Touch(ctx context.Context, ownerId, otherUserId string, last entity.Message, unreadDelta int64) (entity.RosterEntry, error)
	SetUnread(ctx context.Context, ownerId, otherUserId string, count int64) (entity.RosterEntry, error)
	SetLastMessage(ctx context.Context, ownerId, otherUserId string, last *entity.Message) (entity.RosterEntry, error)
}

// SortRoster orders entries by last message time, newest first. Ties keep
// the most recently touched entry on top.
func SortRoster(entries []entity.RosterEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ki, kj := entries[i].OrderKey(), entries[j].OrderKey()
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return entries[i].TouchedAt > entries[j].TouchedAt
	})
}

type rosterRepository struct {
	db mongo.Database
}

func NewRosterRepository(db mongo.Database) RosterRepository {
	return &rosterRepository{
		db: db,
	}
}

func rosterId(ownerId, otherUserId string) string {
	return ownerId + "|" + otherUserId
}

func (r *rosterRepository) Index(ctx context.Context, ownerId string) ([]entity.RosterEntry, error) {
	collection := r.db.Collection("roster")
	opts := options.Find().SetSort(bson.D{
		{Key: "lastMessage.createdAt", Value: -1},
		{Key: "touchedAt", Value: -1},
	})

	cursor, err := collection.Find(ctx, bson.M{"ownerId": ownerId}, opts)
	if err != nil {
		return nil, err
	}

	entries := make([]entity.RosterEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *rosterRepository) Get(ctx context.Context, ownerId, otherUserId string) (entity.RosterEntry, error) {
	collection := r.db.Collection("roster")

	var entry entity.RosterEntry
	err := collection.FindOne(ctx, bson.M{"_id": rosterId(ownerId, otherUserId)}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.RosterEntry{}, ErrRosterEntryNotFound
		}
		return entity.RosterEntry{}, err
	}

	return entry, nil
}

func (r *rosterRepository) Touch(ctx context.Context, ownerId, otherUserId string, last entity.Message, unreadDelta int64) (entity.RosterEntry, error) {
	newer := bson.D{{Key: "$gte", Value: bson.A{
		last.Seq,
		bson.D{{Key: "$ifNull", Value: bson.A{"$lastMessage.seq", int64(-1)}}},
	}}}

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "ownerId", Value: ownerId},
			{Key: "otherUserId", Value: otherUserId},
			{Key: "lastMessage", Value: bson.D{{Key: "$cond", Value: bson.A{
				newer,
				bson.D{{Key: "$literal", Value: last}},
				"$lastMessage",
			}}}},
			{Key: "unreadCount", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$unreadCount", int64(0)}}}, unreadDelta,
			}}}},
			{Key: "touchedAt", Value: time.Now().UnixNano()},
		}}},
	}

	return r.findOneAndUpdate(ctx, ownerId, otherUserId, update, true)
}

func (r *rosterRepository) SetUnread(ctx context.Context, ownerId, otherUserId string, count int64) (entity.RosterEntry, error) {
	update := bson.M{"$set": bson.M{"unreadCount": count}}
	return r.findOneAndUpdate(ctx, ownerId, otherUserId, update, false)
}

func (r *rosterRepository) SetLastMessage(ctx context.Context, ownerId, otherUserId string, last *entity.Message) (entity.RosterEntry, error) {
	update := bson.M{"$set": bson.M{"lastMessage": last}}
	return r.findOneAndUpdate(ctx, ownerId, otherUserId, update, false)
}

func (r *rosterRepository) findOneAndUpdate(ctx context.Context, ownerId, otherUserId string, update any, upsert bool) (entity.RosterEntry, error) {
	collection := r.db.Collection("roster")
	opts := options.FindOneAndUpdate().SetUpsert(upsert).SetReturnDocument(options.After)

	var entry entity.RosterEntry
	err := collection.FindOneAndUpdate(ctx, bson.M{"_id": rosterId(ownerId, otherUserId)}, update, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.RosterEntry{}, ErrRosterEntryNotFound
		}
		return entity.RosterEntry{}, err
	}

	return entry, nil
}
