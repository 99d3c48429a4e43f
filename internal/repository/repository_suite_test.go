package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directmsg/internal/entity"
)

// Shared behaviour tests, run against every backend. User ids are random so
// suites can share a database.

func testUsers() (string, string) {
	return "u-" + uuid.NewString(), "u-" + uuid.NewString()
}

func draft(from, to, content string) entity.MessageDraft {
	return entity.MessageDraft{SenderId: from, RecipientId: to, Content: content}
}

func runMessageRepositorySuite(t *testing.T, repo MessageRepository) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("create assigns increasing seq and non-decreasing createdAt", func(t *testing.T) {
		a, b := testUsers()

		m1, err := repo.Create(ctx, draft(a, b, "one"), base)
		require.NoError(t, err)
		// Wall clock stepping back must not reorder.
		m2, err := repo.Create(ctx, draft(b, a, "two"), base.Add(-time.Minute))
		require.NoError(t, err)

		assert.NotEqual(t, m1.Id, m2.Id)
		assert.Equal(t, int64(1), m1.Seq)
		assert.Equal(t, int64(2), m2.Seq)
		assert.False(t, m2.CreatedAt.Before(m1.CreatedAt))
	})

	t.Run("concurrent creates in one conversation", func(t *testing.T) {
		a, b := testUsers()
		const n = 20

		var wg sync.WaitGroup
		results := make(chan entity.Message, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				from, to := a, b
				if i%2 == 1 {
					from, to = b, a
				}
				m, err := repo.Create(ctx, draft(from, to, fmt.Sprint(i)), time.Now())
				assert.NoError(t, err)
				results <- m
			}(i)
		}
		wg.Wait()
		close(results)

		ids := map[string]bool{}
		seqs := map[int64]bool{}
		for m := range results {
			ids[m.Id] = true
			seqs[m.Seq] = true
		}
		assert.Len(t, ids, n)
		assert.Len(t, seqs, n)

		messages, err := repo.Index(ctx, a, b, entity.MessageIndexFilter{Limit: n})
		require.NoError(t, err)
		require.Len(t, messages, n)
		for i := 1; i < n; i++ {
			assert.Less(t, messages[i-1].Seq, messages[i].Seq)
			assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
		}
	})

	t.Run("index pages backwards and hides tombstones", func(t *testing.T) {
		a, b := testUsers()
		var created []entity.Message
		for i := 0; i < 5; i++ {
			m, err := repo.Create(ctx, draft(a, b, fmt.Sprint(i)), base.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
			created = append(created, m)
		}

		changed, err := repo.MarkDeleted(ctx, created[3].Id)
		require.NoError(t, err)
		assert.True(t, changed)

		page, err := repo.Index(ctx, b, a, entity.MessageIndexFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, []string{"2", "4"}, []string{page[0].Content, page[1].Content})

		page, err = repo.Index(ctx, a, b, entity.MessageIndexFilter{Limit: 10, BeforeSeq: page[0].Seq})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "0", page[0].Content)
		assert.Equal(t, "1", page[1].Content)
	})

	t.Run("latest skips deleted messages", func(t *testing.T) {
		a, b := testUsers()

		latest, err := repo.Latest(ctx, a, b)
		require.NoError(t, err)
		assert.Nil(t, latest)

		m1, err := repo.Create(ctx, draft(a, b, "first"), base)
		require.NoError(t, err)
		m2, err := repo.Create(ctx, draft(a, b, "second"), base.Add(time.Second))
		require.NoError(t, err)

		_, err = repo.MarkDeleted(ctx, m2.Id)
		require.NoError(t, err)

		latest, err = repo.Latest(ctx, b, a)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, m1.Id, latest.Id)
	})

	t.Run("mark read only touches one direction", func(t *testing.T) {
		a, b := testUsers()
		for i := 0; i < 3; i++ {
			_, err := repo.Create(ctx, draft(a, b, "to b"), base)
			require.NoError(t, err)
		}
		_, err := repo.Create(ctx, draft(b, a, "to a"), base)
		require.NoError(t, err)

		n, err := repo.CountUnread(ctx, a, b)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		changed, err := repo.MarkRead(ctx, a, b, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(3), changed)

		changed, err = repo.MarkRead(ctx, a, b, base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, changed)

		n, err = repo.CountUnread(ctx, b, a)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		messages, err := repo.Index(ctx, a, b, entity.MessageIndexFilter{})
		require.NoError(t, err)
		for _, m := range messages {
			if m.SenderId == a {
				require.NotNil(t, m.ReadAt)
				assert.True(t, m.ReadAt.Equal(base.Add(time.Hour)))
			} else {
				assert.Nil(t, m.ReadAt)
			}
		}
	})

	t.Run("mark deleted is idempotent and reports missing", func(t *testing.T) {
		a, b := testUsers()
		m, err := repo.Create(ctx, draft(a, b, "bye"), base)
		require.NoError(t, err)

		changed, err := repo.MarkDeleted(ctx, m.Id)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.MarkDeleted(ctx, m.Id)
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := repo.Get(ctx, m.Id)
		require.NoError(t, err)
		assert.True(t, got.Deleted)

		_, err = repo.MarkDeleted(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrMessageNotFound)
		_, err = repo.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})

	t.Run("deleted messages are not counted unread", func(t *testing.T) {
		a, b := testUsers()
		m, err := repo.Create(ctx, draft(a, b, "oops"), base)
		require.NoError(t, err)
		_, err = repo.MarkDeleted(ctx, m.Id)
		require.NoError(t, err)

		n, err := repo.CountUnread(ctx, a, b)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func runRosterRepositorySuite(t *testing.T, messages MessageRepository, roster RosterRepository) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("touch creates lazily and accumulates unread", func(t *testing.T) {
		a, b := testUsers()

		_, err := roster.Get(ctx, b, a)
		assert.ErrorIs(t, err, ErrRosterEntryNotFound)

		m1, err := messages.Create(ctx, draft(a, b, "hi"), base)
		require.NoError(t, err)
		m2, err := messages.Create(ctx, draft(a, b, "there"), base.Add(time.Second))
		require.NoError(t, err)

		_, err = roster.Touch(ctx, b, a, m1, 1)
		require.NoError(t, err)
		entry, err := roster.Touch(ctx, b, a, m2, 1)
		require.NoError(t, err)

		assert.Equal(t, a, entry.OtherUserId)
		assert.Equal(t, int64(2), entry.UnreadCount)
		require.NotNil(t, entry.LastMessage)
		assert.Equal(t, m2.Id, entry.LastMessage.Id)
	})

	t.Run("touch never moves last message backwards", func(t *testing.T) {
		a, b := testUsers()
		m1, err := messages.Create(ctx, draft(a, b, "old"), base)
		require.NoError(t, err)
		m2, err := messages.Create(ctx, draft(a, b, "new"), base.Add(time.Second))
		require.NoError(t, err)

		_, err = roster.Touch(ctx, a, b, m2, 0)
		require.NoError(t, err)
		entry, err := roster.Touch(ctx, a, b, m1, 0)
		require.NoError(t, err)

		require.NotNil(t, entry.LastMessage)
		assert.Equal(t, "new", entry.LastMessage.Content)
	})

	t.Run("set unread and last message", func(t *testing.T) {
		a, b := testUsers()
		m, err := messages.Create(ctx, draft(a, b, "x"), base)
		require.NoError(t, err)
		_, err = roster.Touch(ctx, b, a, m, 1)
		require.NoError(t, err)

		entry, err := roster.SetUnread(ctx, b, a, 0)
		require.NoError(t, err)
		assert.Zero(t, entry.UnreadCount)

		entry, err = roster.SetLastMessage(ctx, b, a, nil)
		require.NoError(t, err)
		assert.Nil(t, entry.LastMessage)

		_, err = roster.SetUnread(ctx, "nobody-"+uuid.NewString(), a, 0)
		assert.ErrorIs(t, err, ErrRosterEntryNotFound)
	})

	t.Run("index sorts by recency", func(t *testing.T) {
		owner, _ := testUsers()
		c1, c2 := testUsers()
		c3, _ := testUsers()

		m1, err := messages.Create(ctx, draft(c1, owner, "from c1"), base)
		require.NoError(t, err)
		m2, err := messages.Create(ctx, draft(c2, owner, "from c2"), base.Add(time.Minute))
		require.NoError(t, err)

		_, err = roster.Touch(ctx, owner, c1, m1, 1)
		require.NoError(t, err)
		_, err = roster.Touch(ctx, owner, c2, m2, 1)
		require.NoError(t, err)

		m3, err := messages.Create(ctx, draft(c3, owner, "from c3"), base.Add(time.Second))
		require.NoError(t, err)
		_, err = roster.Touch(ctx, owner, c3, m3, 1)
		require.NoError(t, err)
		_, err = roster.SetLastMessage(ctx, owner, c3, nil)
		require.NoError(t, err)

		entries, err := roster.Index(ctx, owner)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, c2, entries[0].OtherUserId)
		assert.Equal(t, c1, entries[1].OtherUserId)
		assert.Equal(t, c3, entries[2].OtherUserId)
	})

	t.Run("concurrent touches of one pair do not lose increments", func(t *testing.T) {
		a, b := testUsers()
		const n = 25

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m, err := messages.Create(ctx, draft(a, b, "ping"), time.Now())
				if !assert.NoError(t, err) {
					return
				}
				_, err = roster.Touch(ctx, b, a, m, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		entry, err := roster.Get(ctx, b, a)
		require.NoError(t, err)
		assert.Equal(t, int64(n), entry.UnreadCount)
		require.NotNil(t, entry.LastMessage)
		assert.Equal(t, int64(n), entry.LastMessage.Seq)
	})
}
