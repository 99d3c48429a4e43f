package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"directmsg/internal/entity"
)

type postgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) UserRepository {
	return &postgresUserRepository{
		db: db,
	}
}

func (r *postgresUserRepository) Get(ctx context.Context, userId string) (entity.Profile, error) {
	query, args, err := sq.Select("id", "username", "name", "avatar_url").
		From("users").
		Where(sq.Eq{"id": userId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return entity.Profile{}, fmt.Errorf("failed to build sql query: %v", err)
	}

	var profile entity.Profile
	if err := r.db.GetContext(ctx, &profile, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Profile{}, ErrUserNotFound
		}
		return entity.Profile{}, err
	}
	return profile, nil
}

func (r *postgresUserRepository) Index(ctx context.Context, filter entity.UserIndexFilter) ([]entity.Profile, error) {
	if len(filter.Ids) == 0 {
		return []entity.Profile{}, nil
	}

	query, args, err := sq.Select("id", "username", "name", "avatar_url").
		From("users").
		Where(sq.Eq{"id": filter.Ids}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var profiles []entity.Profile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get profiles: %w", err)
	}
	return profiles, nil
}
