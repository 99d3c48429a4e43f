package repository

import (
	"context"
	"errors"

	"directmsg/internal/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository is the read side of the identity collaborator.
type UserRepository interface {
	Get(ctx context.Context, userId string) (entity.Profile, error)
	Index(ctx context.Context, filter entity.UserIndexFilter) ([]entity.Profile, error)
}

type userRepository struct {
	db mongo.Database
}

func NewUserRepository(db mongo.Database) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) Get(ctx context.Context, userId string) (entity.Profile, error) {
	collection := r.db.Collection("users")
	filter := bson.M{"_id": userId}

	var profile entity.Profile
	err := collection.FindOne(ctx, filter).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.Profile{}, ErrUserNotFound
		}
		return entity.Profile{}, err
	}

	return profile, nil
}

func (r *userRepository) Index(ctx context.Context, filter entity.UserIndexFilter) ([]entity.Profile, error) {
	collection := r.db.Collection("users")
	query := bson.M{"_id": bson.M{"$in": filter.Ids}}

	cursor, err := collection.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []entity.Profile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}

	return profiles, nil
}
