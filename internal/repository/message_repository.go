package repository

import (
	"context"
	"errors"
	"time"

	"directmsg/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrMessageNotFound = errors.New("message not found")
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// MessageRepository is the durable, ordered record of direct messages.
//
// Create must be atomic per conversation: concurrent creates in one
// conversation receive distinct, increasing seq values and non-decreasing
// createdAt values.
type MessageRepository interface {
	Create(ctx context.Context, draft entity.MessageDraft, now time.Time) (entity.Message, error)
	Get(ctx context.Context, messageId string) (entity.Message, error)
	// Index returns visible messages between two users, oldest first.
	Index(ctx context.Context, userA, userB string, filter entity.MessageIndexFilter) ([]entity.Message, error)
	// Latest returns the newest visible message between two users, or nil.
	Latest(ctx context.Context, userA, userB string) (*entity.Message, error)
	// MarkRead stamps unread sender->recipient messages and returns how many changed.
	MarkRead(ctx context.Context, senderId, recipientId string, at time.Time) (int64, error)
	// MarkDeleted tombstones a message. It reports false when it already was.
	MarkDeleted(ctx context.Context, messageId string) (bool, error)
	CountUnread(ctx context.Context, senderId, recipientId string) (int64, error)
}

type messageRepository struct {
	db mongo.Database
}

func NewMessageRepository(db mongo.Database) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

type conversationCounter struct {
	Seq    int64     `bson:"seq"`
	LastAt time.Time `bson:"lastAt"`
}

func (r *messageRepository) Create(ctx context.Context, draft entity.MessageDraft, now time.Time) (entity.Message, error) {
	counters := r.db.Collection("conversation_counters")
	key := entity.ConversationKey(draft.SenderId, draft.RecipientId)

	// Mongo keeps millisecond precision; truncate before comparing.
	now = now.UTC().Truncate(time.Millisecond)
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "seq", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$seq", 0}}}, 1,
			}}}},
			{Key: "lastAt", Value: bson.D{{Key: "$max", Value: bson.A{"$lastAt", now}}}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter conversationCounter
	err := counters.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&counter)
	if err != nil {
		return entity.Message{}, err
	}

	message := newMessage(draft, counter.Seq, counter.LastAt)
	_, err = r.db.Collection("messages").InsertOne(ctx, message)
	if err != nil {
		return entity.Message{}, err
	}

	return message, nil
}

func (r *messageRepository) Get(ctx context.Context, messageId string) (entity.Message, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId}

	var message entity.Message
	err := collection.FindOne(ctx, filter).Decode(&message)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.Message{}, ErrMessageNotFound
		}
		return entity.Message{}, err
	}

	return message, nil
}

func (r *messageRepository) Index(ctx context.Context, userA, userB string, filter entity.MessageIndexFilter) ([]entity.Message, error) {
	collection := r.db.Collection("messages")

	query := pairFilter(userA, userB)
	query["deleted"] = false
	if filter.BeforeSeq > 0 {
		query["seq"] = bson.M{"$lt": filter.BeforeSeq}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(int64(PageSize(filter.Limit)))

	cursor, err := collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	messages := make([]entity.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	reverse(messages)
	return messages, nil
}

func (r *messageRepository) Latest(ctx context.Context, userA, userB string) (*entity.Message, error) {
	collection := r.db.Collection("messages")

	query := pairFilter(userA, userB)
	query["deleted"] = false
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})

	var message entity.Message
	err := collection.FindOne(ctx, query, opts).Decode(&message)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &message, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, senderId, recipientId string, at time.Time) (int64, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{
		"senderId":    senderId,
		"recipientId": recipientId,
		"readAt":      nil,
		"deleted":     false,
	}
	update := bson.M{
		"$set": bson.M{
			"readAt": at.UTC(),
		},
	}

	result, err := collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

func (r *messageRepository) MarkDeleted(ctx context.Context, messageId string) (bool, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId, "deleted": false}
	update := bson.M{
		"$set": bson.M{
			"deleted": true,
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	if result.MatchedCount == 0 {
		if _, err := r.Get(ctx, messageId); err != nil {
			return false, err
		}
		return false, nil
	}

	return true, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, senderId, recipientId string) (int64, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{
		"senderId":    senderId,
		"recipientId": recipientId,
		"readAt":      nil,
		"deleted":     false,
	}

	return collection.CountDocuments(ctx, filter)
}

func pairFilter(userA, userB string) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"senderId": userA, "recipientId": userB},
			bson.M{"senderId": userB, "recipientId": userA},
		},
	}
}

func newMessage(draft entity.MessageDraft, seq int64, createdAt time.Time) entity.Message {
	return entity.Message{
		Id:                  uuid.New().String(),
		SenderId:            draft.SenderId,
		RecipientId:         draft.RecipientId,
		Content:             draft.Content,
		SharedReviewRef:     draft.SharedReviewRef,
		SharedDiscussionRef: draft.SharedDiscussionRef,
		Seq:                 seq,
		CreatedAt:           createdAt,
		TempId:              draft.TempId,
	}
}

// PageSize clamps a requested page size to the supported range.
func PageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func reverse(messages []entity.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
