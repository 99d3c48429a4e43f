//go:build integration

package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"directmsg/infrastructure/db"
)

func TestMongoRepositories(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx := context.Background()

	store, err := db.NewMongoStore(ctx, uri, "directmsg_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.DB.Drop(ctx)
		_ = store.Close(ctx)
	})
	require.NoError(t, store.EnsureIndexes(ctx))

	messages := NewMessageRepository(*store.DB)
	t.Run("messages", func(t *testing.T) {
		runMessageRepositorySuite(t, messages)
	})
	t.Run("roster", func(t *testing.T) {
		runRosterRepositorySuite(t, messages, NewRosterRepository(*store.DB))
	})
}

func TestPostgresRepositories(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()

	store, err := db.NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	messages := NewPostgresMessageRepository(store.DB)
	t.Run("messages", func(t *testing.T) {
		runMessageRepositorySuite(t, messages)
	})
	t.Run("roster", func(t *testing.T) {
		runRosterRepositorySuite(t, messages, NewPostgresRosterRepository(store.DB))
	})
}
