package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"directmsg/internal/entity"
)

// rosterRow is a roster row joined with its last message, if any.
type rosterRow struct {
	OwnerId     string `db:"owner_id"`
	OtherUserId string `db:"other_user_id"`
	UnreadCount int64  `db:"unread_count"`
	TouchedAt   int64  `db:"touched_at"`

	MessageId           sql.NullString `db:"m_id"`
	SenderId            sql.NullString `db:"m_sender_id"`
	RecipientId         sql.NullString `db:"m_recipient_id"`
	Content             sql.NullString `db:"m_content"`
	SharedReviewRef     *string        `db:"m_shared_review_ref"`
	SharedDiscussionRef *string        `db:"m_shared_discussion_ref"`
	Seq                 sql.NullInt64  `db:"m_seq"`
	CreatedAt           sql.NullTime   `db:"m_created_at"`
	ReadAt              sql.NullTime   `db:"m_read_at"`
}

func (row rosterRow) entry() entity.RosterEntry {
	e := entity.RosterEntry{
		OwnerId:     row.OwnerId,
		OtherUserId: row.OtherUserId,
		UnreadCount: row.UnreadCount,
		TouchedAt:   row.TouchedAt,
	}
	if !row.MessageId.Valid {
		return e
	}

	m := entity.Message{
		Id:                  row.MessageId.String,
		SenderId:            row.SenderId.String,
		RecipientId:         row.RecipientId.String,
		Content:             row.Content.String,
		SharedReviewRef:     row.SharedReviewRef,
		SharedDiscussionRef: row.SharedDiscussionRef,
		Seq:                 row.Seq.Int64,
		CreatedAt:           row.CreatedAt.Time.UTC(),
	}
	if row.ReadAt.Valid {
		readAt := row.ReadAt.Time.UTC()
		m.ReadAt = &readAt
	}
	e.LastMessage = &m
	return e
}

type postgresRosterRepository struct {
	db *sqlx.DB
}

func NewPostgresRosterRepository(db *sqlx.DB) RosterRepository {
	return &postgresRosterRepository{
		db: db,
	}
}

func rosterSelect() sq.SelectBuilder {
	return sq.Select(
		"r.owner_id",
		"r.other_user_id",
		"r.unread_count",
		"r.touched_at",
		"m.id AS m_id",
		"m.sender_id AS m_sender_id",
		"m.recipient_id AS m_recipient_id",
		"m.content AS m_content",
		"m.shared_review_ref AS m_shared_review_ref",
		"m.shared_discussion_ref AS m_shared_discussion_ref",
		"m.seq AS m_seq",
		"m.created_at AS m_created_at",
		"m.read_at AS m_read_at",
	).
		From("roster r").
		LeftJoin("messages m ON m.id = r.last_message_id")
}

func (r *postgresRosterRepository) Index(ctx context.Context, ownerId string) ([]entity.RosterEntry, error) {
	query, args, err := rosterSelect().
		Where(sq.Eq{"r.owner_id": ownerId}).
		OrderBy("m.created_at DESC NULLS LAST", "r.touched_at DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var rows []rosterRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get roster: %w", err)
	}

	entries := make([]entity.RosterEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}

func (r *postgresRosterRepository) Get(ctx context.Context, ownerId, otherUserId string) (entity.RosterEntry, error) {
	query, args, err := rosterSelect().
		Where(sq.Eq{"r.owner_id": ownerId, "r.other_user_id": otherUserId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return entity.RosterEntry{}, fmt.Errorf("failed to build sql query: %v", err)
	}

	var row rosterRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.RosterEntry{}, ErrRosterEntryNotFound
		}
		return entity.RosterEntry{}, err
	}
	return row.entry(), nil
}

// Touch upserts in a single statement; the row lock taken by ON CONFLICT
// makes concurrent touches of one pair apply one after the other.
func (r *postgresRosterRepository) Touch(ctx context.Context, ownerId, otherUserId string, last entity.Message, unreadDelta int64) (entity.RosterEntry, error) {
	query, args, err := sq.Insert("roster").
		Columns("owner_id", "other_user_id", "last_message_id", "unread_count", "touched_at").
		Values(ownerId, otherUserId, last.Id, unreadDelta, time.Now().UnixNano()).
		Suffix("ON CONFLICT (owner_id, other_user_id) DO UPDATE SET "+
			"last_message_id = CASE WHEN roster.last_message_id IS NULL "+
			"OR (SELECT seq FROM messages WHERE id = roster.last_message_id) <= ? "+
			"THEN EXCLUDED.last_message_id ELSE roster.last_message_id END, "+
			"unread_count = roster.unread_count + EXCLUDED.unread_count, "+
			"touched_at = EXCLUDED.touched_at", last.Seq).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return entity.RosterEntry{}, fmt.Errorf("failed to build sql query: %v", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return entity.RosterEntry{}, fmt.Errorf("failed to touch roster entry: %w", err)
	}
	return r.Get(ctx, ownerId, otherUserId)
}

func (r *postgresRosterRepository) SetUnread(ctx context.Context, ownerId, otherUserId string, count int64) (entity.RosterEntry, error) {
	return r.update(ctx, ownerId, otherUserId, "unread_count", count)
}

func (r *postgresRosterRepository) SetLastMessage(ctx context.Context, ownerId, otherUserId string, last *entity.Message) (entity.RosterEntry, error) {
	var lastId *string
	if last != nil {
		lastId = &last.Id
	}
	return r.update(ctx, ownerId, otherUserId, "last_message_id", lastId)
}

func (r *postgresRosterRepository) update(ctx context.Context, ownerId, otherUserId, column string, value any) (entity.RosterEntry, error) {
	query, args, err := sq.Update("roster").
		Set(column, value).
		Where(sq.Eq{"owner_id": ownerId, "other_user_id": otherUserId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return entity.RosterEntry{}, fmt.Errorf("failed to build sql query: %v", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return entity.RosterEntry{}, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return entity.RosterEntry{}, err
	}
	if n == 0 {
		return entity.RosterEntry{}, ErrRosterEntryNotFound
	}
	return r.Get(ctx, ownerId, otherUserId)
}
