package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_counters (
	conversation_key TEXT PRIMARY KEY,
	seq              BIGINT      NOT NULL,
	last_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id                    UUID PRIMARY KEY,
	sender_id             TEXT        NOT NULL,
	recipient_id          TEXT        NOT NULL,
	content               TEXT        NOT NULL DEFAULT '',
	shared_review_ref     TEXT,
	shared_discussion_ref TEXT,
	seq                   BIGINT      NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	read_at               TIMESTAMPTZ,
	deleted               BOOLEAN     NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS messages_pair_seq_idx ON messages (sender_id, recipient_id, seq DESC);

CREATE TABLE IF NOT EXISTS roster (
	owner_id        TEXT   NOT NULL,
	other_user_id   TEXT   NOT NULL,
	last_message_id UUID   REFERENCES messages (id),
	unread_count    BIGINT NOT NULL DEFAULT 0,
	touched_at      BIGINT NOT NULL,
	PRIMARY KEY (owner_id, other_user_id)
);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT ''
);
`

type PostgresStore struct {
	DB *sqlx.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := sqlx.ConnectContext(connectCtx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	conn.SetMaxOpenConns(50)

	return &PostgresStore{DB: conn}, nil
}

// Migrate applies the schema. Statements are idempotent.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	return p.DB.Close()
}
