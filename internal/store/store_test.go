// ABOUTME: Tests for the conversation log Store implementations
// ABOUTME: Covers append/list ordering, limits, key isolation, and concurrency

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSQLiteTestStore creates a SQLite store backed by a temp directory.
func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// eachStore runs fn against every Store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLiteTestStore(t))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

func makeMessage(key, from, to, text string) *Message {
	return &Message{
		ID:              uuid.New().String(),
		ConversationKey: key,
		From:            from,
		To:              to,
		Text:            text,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestStore_AppendAndListPreservesOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			msg := makeMessage("dm:u1:u2", "u1", "u2", fmt.Sprintf("msg-%d", i))
			require.NoError(t, s.AppendMessage(ctx, msg))
		}

		got, err := s.ListMessages(ctx, "dm:u1:u2", 0)
		require.NoError(t, err)
		require.Len(t, got, 5)
		for i, msg := range got {
			assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Text)
		}
	})
}

func TestStore_ListRespectsLimitAndReturnsMostRecent(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			msg := makeMessage("dm:u1:u2", "u1", "u2", fmt.Sprintf("m%d", i+1))
			require.NoError(t, s.AppendMessage(ctx, msg))
		}

		// limit=1 returns exactly the most recent message
		got, err := s.ListMessages(ctx, "dm:u1:u2", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "m3", got[0].Text)

		// raising the limit reproduces full history order
		got, err = s.ListMessages(ctx, "dm:u1:u2", 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "m1", got[0].Text)
		assert.Equal(t, "m2", got[1].Text)
		assert.Equal(t, "m3", got[2].Text)
	})
}

func TestStore_ConversationKeysAreIsolated(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.AppendMessage(ctx, makeMessage("dm:u1:u2", "u1", "u2", "for u2")))
		require.NoError(t, s.AppendMessage(ctx, makeMessage("dm:u1:u3", "u1", "u3", "for u3")))

		got, err := s.ListMessages(ctx, "dm:u1:u2", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "for u2", got[0].Text)

		got, err = s.ListMessages(ctx, "dm:u1:u3", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "for u3", got[0].Text)
	})
}

func TestStore_ListUnknownKeyReturnsEmpty(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		got, err := s.ListMessages(context.Background(), "dm:nobody:noone", 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStore_MessageFieldsRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		msg := makeMessage("dm:u1:u2", "u1", "u2", "hello")
		msg.AttachmentRef = "blob://uploads/cat.png"
		require.NoError(t, s.AppendMessage(ctx, msg))

		got, err := s.ListMessages(ctx, "dm:u1:u2", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, msg.ID, got[0].ID)
		assert.Equal(t, "u1", got[0].From)
		assert.Equal(t, "u2", got[0].To)
		assert.Equal(t, "hello", got[0].Text)
		assert.Equal(t, "blob://uploads/cat.png", got[0].AttachmentRef)
		assert.WithinDuration(t, msg.CreatedAt, got[0].CreatedAt, time.Millisecond)
	})
}

func TestStore_ConcurrentAppendsLoseNothing(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const writers = 8
		const perWriter = 25

		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					msg := makeMessage("dm:a:b", "a", "b", fmt.Sprintf("w%d-%d", w, i))
					assert.NoError(t, s.AppendMessage(ctx, msg))
				}
			}(w)
		}
		wg.Wait()

		got, err := s.ListMessages(ctx, "dm:a:b", 0)
		require.NoError(t, err)
		assert.Len(t, got, writers*perWriter)

		// No duplicates
		seen := make(map[string]bool, len(got))
		for _, msg := range got {
			assert.False(t, seen[msg.ID], "duplicate message %s", msg.ID)
			seen[msg.ID] = true
		}
	})
}

func TestMemoryStore_AppendCopiesMessage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	msg := makeMessage("dm:u1:u2", "u1", "u2", "original")
	require.NoError(t, s.AppendMessage(ctx, msg))

	// Mutating the caller's copy must not affect the stored record.
	msg.Text = "mutated"

	got, err := s.ListMessages(ctx, "dm:u1:u2", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "original", got[0].Text)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(context.Background(), makeMessage("dm:u1:u2", "u1", "u2", "durable")))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ListMessages(context.Background(), "dm:u1:u2", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "durable", got[0].Text)
}
