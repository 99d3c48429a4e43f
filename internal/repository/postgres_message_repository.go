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

var messageColumns = []string{
	"id",
	"sender_id",
	"recipient_id",
	"content",
	"shared_review_ref",
	"shared_discussion_ref",
	"seq",
	"created_at",
	"read_at",
	"deleted",
}

type postgresMessageRepository struct {
	db *sqlx.DB
}

func NewPostgresMessageRepository(db *sqlx.DB) MessageRepository {
	return &postgresMessageRepository{
		db: db,
	}
}

// Create bumps the conversation counter and inserts the message in one
// transaction. The counter row lock serialises creates per conversation.
func (r *postgresMessageRepository) Create(ctx context.Context, draft entity.MessageDraft, now time.Time) (entity.Message, error) {
	key := entity.ConversationKey(draft.SenderId, draft.RecipientId)
	now = now.UTC().Truncate(time.Microsecond)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Message{}, err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sq.Insert("conversation_counters").
		Columns("conversation_key", "seq", "last_at").
		Values(key, 1, now).
		Suffix("ON CONFLICT (conversation_key) DO UPDATE SET " +
			"seq = conversation_counters.seq + 1, " +
			"last_at = GREATEST(conversation_counters.last_at, EXCLUDED.last_at) " +
			"RETURNING seq, last_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return entity.Message{}, fmt.Errorf("failed to build sql query: %v", err)
	}

	var counter struct {
		Seq    int64     `db:"seq"`
		LastAt time.Time `db:"last_at"`
	}
	if err := tx.GetContext(ctx, &counter, query, args...); err != nil {
		return entity.Message{}, fmt.Errorf("failed to bump conversation counter: %w", err)
	}

	message := newMessage(draft, counter.Seq, counter.LastAt.UTC())
	query, args, err = sq.Insert("messages").
		Columns(messageColumns...).
		Values(
			message.Id,
			message.SenderId,
			message.RecipientId,
			message.Content,
			message.SharedReviewRef,
			message.SharedDiscussionRef,
			message.Seq,
			message.CreatedAt,
			nil,
			false,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return entity.Message{}, fmt.Errorf("failed to build sql query: %v", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return entity.Message{}, fmt.Errorf("failed to save message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return entity.Message{}, err
	}

	return message, nil
}

func (r *postgresMessageRepository) Get(ctx context.Context, messageId string) (entity.Message, error) {
	query, args, err := sq.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"id": messageId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return entity.Message{}, fmt.Errorf("failed to build sql query: %v", err)
	}

	var message entity.Message
	err = r.db.GetContext(ctx, &message, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Message{}, ErrMessageNotFound
		}
		return entity.Message{}, err
	}

	return normalizeTimes(message), nil
}

func (r *postgresMessageRepository) Index(ctx context.Context, userA, userB string, filter entity.MessageIndexFilter) ([]entity.Message, error) {
	builder := sq.Select(messageColumns...).
		From("messages").
		Where(pairCondition(userA, userB)).
		Where(sq.Eq{"deleted": false}).
		OrderBy("seq DESC").
		Limit(uint64(PageSize(filter.Limit)))

	if filter.BeforeSeq > 0 {
		builder = builder.Where(sq.Lt{"seq": filter.BeforeSeq})
	}

	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	messages := make([]entity.Message, 0)
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, err
	}

	for i := range messages {
		messages[i] = normalizeTimes(messages[i])
	}
	reverse(messages)
	return messages, nil
}

func (r *postgresMessageRepository) Latest(ctx context.Context, userA, userB string) (*entity.Message, error) {
	query, args, err := sq.Select(messageColumns...).
		From("messages").
		Where(pairCondition(userA, userB)).
		Where(sq.Eq{"deleted": false}).
		OrderBy("seq DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var message entity.Message
	err = r.db.GetContext(ctx, &message, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	message = normalizeTimes(message)
	return &message, nil
}

func (r *postgresMessageRepository) MarkRead(ctx context.Context, senderId, recipientId string, at time.Time) (int64, error) {
	query, args, err := sq.Update("messages").
		Set("read_at", at.UTC()).
		Where(sq.Eq{
			"sender_id":    senderId,
			"recipient_id": recipientId,
			"read_at":      nil,
			"deleted":      false,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build sql query: %v", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postgresMessageRepository) MarkDeleted(ctx context.Context, messageId string) (bool, error) {
	query, args, err := sq.Update("messages").
		Set("deleted", true).
		Where(sq.Eq{"id": messageId, "deleted": false}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build sql query: %v", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := r.Get(ctx, messageId); err != nil {
			return false, err
		}
		return false, nil
	}

	return true, nil
}

func (r *postgresMessageRepository) CountUnread(ctx context.Context, senderId, recipientId string) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("messages").
		Where(sq.Eq{
			"sender_id":    senderId,
			"recipient_id": recipientId,
			"read_at":      nil,
			"deleted":      false,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build sql query: %v", err)
	}

	var n int64
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

func pairCondition(userA, userB string) sq.Or {
	return sq.Or{
		sq.Eq{"sender_id": userA, "recipient_id": userB},
		sq.Eq{"sender_id": userB, "recipient_id": userA},
	}
}

func normalizeTimes(m entity.Message) entity.Message {
	m.CreatedAt = m.CreatedAt.UTC()
	if m.ReadAt != nil {
		readAt := m.ReadAt.UTC()
		m.ReadAt = &readAt
	}
	return m
}
