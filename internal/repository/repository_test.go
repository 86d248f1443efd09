package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/models"
)

func stores(t *testing.T) map[string]*Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	sqliteStore := NewSQLiteStore(db)
	t.Cleanup(func() { _ = sqliteStore.Close(context.Background()) })

	return map[string]*Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestUsers(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			users := store.Users

			alice := &models.User{ID: "u-alice", DisplayName: "alice", Email: "Alice@Example.com", Provider: models.ProviderPassword}
			require.NoError(t, users.Create(ctx, alice))
			assert.Equal(t, "alice@example.com", alice.Email)
			assert.False(t, alice.CreatedAt.IsZero())

			dup := &models.User{ID: "u-other", DisplayName: "x", Email: "ALICE@example.com"}
			assert.ErrorIs(t, users.Create(ctx, dup), apperrors.ErrDuplicate)

			got, err := users.GetByEmail(ctx, " alice@EXAMPLE.com")
			require.NoError(t, err)
			assert.Equal(t, "u-alice", got.ID)

			_, err = users.GetByID(ctx, "missing")
			assert.ErrorIs(t, err, apperrors.ErrNotFound)

			updated, err := users.UpdateDisplayName(ctx, "u-alice", "Alice A")
			require.NoError(t, err)
			assert.Equal(t, "Alice A", updated.DisplayName)

			updated, err = users.UpdateAvatar(ctx, "u-alice", "https://cdn/a.png")
			require.NoError(t, err)
			assert.Equal(t, "https://cdn/a.png", updated.AvatarURL)

			_, err = users.UpdateAvatar(ctx, "missing", "x")
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestFindByDisplayNamePrefersEarliest(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			require.NoError(t, store.Users.Create(ctx, &models.User{ID: "late", DisplayName: "sam", Email: "late@x.io", CreatedAt: base.Add(time.Hour)}))
			require.NoError(t, store.Users.Create(ctx, &models.User{ID: "early", DisplayName: "sam", Email: "early@x.io", CreatedAt: base}))

			u, err := store.Users.FindByDisplayName(ctx, "sam")
			require.NoError(t, err)
			assert.Equal(t, "early", u.ID)

			_, err = store.Users.FindByDisplayName(ctx, "Sam")
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestFriends(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			friends := store.Friends

			require.NoError(t, friends.Add(ctx, &models.FriendRef{OwnerID: "a", FriendID: "b", DisplayName: "bob"}))
			require.NoError(t, friends.Add(ctx, &models.FriendRef{OwnerID: "a", FriendID: "c", DisplayName: "carol"}))
			assert.ErrorIs(t, friends.Add(ctx, &models.FriendRef{OwnerID: "a", FriendID: "b"}), apperrors.ErrDuplicate)

			list, err := friends.List(ctx, "a")
			require.NoError(t, err)
			assert.Len(t, list, 2)

			ref, err := friends.Get(ctx, "a", "c")
			require.NoError(t, err)
			assert.Equal(t, "carol", ref.DisplayName)

			require.NoError(t, friends.Remove(ctx, "a", "b"))
			assert.ErrorIs(t, friends.Remove(ctx, "a", "b"), apperrors.ErrNotFound)

			list, err = friends.List(ctx, "a")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "c", list[0].FriendID)

			list, err = friends.List(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestConversationsAndMessages(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			convs := store.Conversations

			c := &models.Conversation{Key: "a_b", Kind: models.KindDirect, Participants: []string{"a", "b"}, LastMessage: "hi", LastSenderID: "a"}
			require.NoError(t, convs.Upsert(ctx, c))
			require.NoError(t, convs.Upsert(ctx, &models.Conversation{Key: "#general", Kind: models.KindChannel, Name: "general", Participants: []string{"a"}, LastMessage: "yo", LastSenderID: "a"}))
			require.NoError(t, convs.Upsert(ctx, &models.Conversation{Key: "#general", Kind: models.KindChannel, Participants: []string{"c"}, LastMessage: "hey", LastSenderID: "c"}))

			general, err := convs.Get(ctx, "#general")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a", "c"}, general.Participants)
			assert.Equal(t, "hey", general.LastMessage)
			assert.Equal(t, "general", general.Name)

			list, err := convs.ListForUser(ctx, "a")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.False(t, list[0].UpdatedAt.Before(list[1].UpdatedAt), "newest first")

			_, err = convs.Get(ctx, "x_y")
			assert.ErrorIs(t, err, apperrors.ErrNotFound)

			var sent []models.Message
			for _, text := range []string{"one", "two", "three", "four"} {
				m := &models.Message{ConversationKey: "a_b", SenderID: "a", Text: text}
				require.NoError(t, convs.AppendMessage(ctx, m))
				assert.NotEmpty(t, m.ID)
				assert.False(t, m.CreatedAt.IsZero())
				sent = append(sent, *m)
			}

			recent, err := convs.Recent(ctx, "a_b", 3)
			require.NoError(t, err)
			require.Len(t, recent, 3)
			assert.Equal(t, []string{"two", "three", "four"}, texts(recent))

			all, err := convs.Before(ctx, "a_b", Cursor{}, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"one", "two", "three", "four"}, texts(all))

			older, err := convs.Before(ctx, "a_b", CursorOf(sent[3]), 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"two", "three"}, texts(older))

			empty, err := convs.Recent(ctx, "nothing", 5)
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)
		})
	}
}

func TestPagingReachesEveryMessageInABurst(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			convs := store.Conversations

			const total = 50
			for i := 0; i < total; i++ {
				require.NoError(t, convs.AppendMessage(ctx, &models.Message{ConversationKey: "a_b", SenderID: "a", Text: "m"}))
			}

			page, err := convs.Recent(ctx, "a_b", 5)
			require.NoError(t, err)
			seen := map[string]bool{}
			for len(page) > 0 {
				for _, m := range page {
					assert.False(t, seen[m.ID], "message %s paged twice", m.ID)
					seen[m.ID] = true
				}
				page, err = convs.Before(ctx, "a_b", CursorOf(page[0]), 5)
				require.NoError(t, err)
			}
			assert.Len(t, seen, total)
		})
	}
}

func TestCursorAdmits(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000).UTC()
	m := models.Message{ID: "b", CreatedAt: at}

	assert.True(t, Cursor{}.Admits(m))
	assert.True(t, Cursor{At: at.Add(time.Millisecond)}.Admits(m))
	assert.False(t, Cursor{At: at}.Admits(m))
	assert.True(t, Cursor{At: at, ID: "c"}.Admits(m))
	assert.False(t, Cursor{At: at, ID: "b"}.Admits(m))
	assert.False(t, Cursor{At: at, ID: "a"}.Admits(m))
}

func texts(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}
