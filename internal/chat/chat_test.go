package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/bus"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
)

func TestDirectKeyIsSymmetric(t *testing.T) {
	assert.Equal(t, DirectKey("alice", "bob"), DirectKey("bob", "alice"))
	assert.Equal(t, "alice_bob", DirectKey("bob", "alice"))
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("a_b")
	require.NoError(t, err)
	assert.Equal(t, models.KindDirect, k.Kind)
	assert.Equal(t, []string{"a", "b"}, k.Participants)
	assert.Equal(t, "a_b", k.String())

	k, err = ParseKey("#general")
	require.NoError(t, err)
	assert.Equal(t, models.KindChannel, k.Kind)
	assert.Equal(t, "general", k.Channel)
	assert.Equal(t, "#general", k.String())

	for _, bad := range []string{"", "#", "#Not Normal", "b_a", "a_b_c", "_b", "solo"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, bad)
	}
}

func TestKeyFor(t *testing.T) {
	key, err := KeyFor("me", models.Target{Kind: models.KindDirect, ID: "you"})
	require.NoError(t, err)
	assert.Equal(t, DirectKey("you", "me"), key)

	key, err = KeyFor("me", models.Target{Kind: models.KindChannel, ID: "Off Topic"})
	require.NoError(t, err)
	assert.Equal(t, "#off-topic", key)

	_, err = KeyFor("me", models.Target{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = KeyFor("me", models.Target{Kind: models.KindDirect, ID: "me"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func newService() (*Service, *repository.Store) {
	store := repository.NewMemoryStore()
	return NewService(store.Conversations, bus.NewMemory()), store
}

func TestSendRejectsBlankText(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	key := DirectKey("a", "b")

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Send(ctx, key, "a", text)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}

	msgs, err := store.Conversations.Recent(ctx, key, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	_, err = store.Conversations.Get(ctx, key)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSendRequiresParticipant(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Send(context.Background(), DirectKey("a", "b"), "c", "hi")
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)
}

func TestSendUpdatesConversationAndFeeds(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	key := DirectKey("a", "b")

	msgs := svc.Subscribe(ctx, key, 50)
	defer msgs.Close()
	convs := svc.SubscribeConversations(ctx, "b")
	defer convs.Close()

	assert.Empty(t, <-msgs.C())
	assert.Empty(t, <-convs.C())

	sent, err := svc.Send(ctx, key, "a", "hello there")
	require.NoError(t, err)
	assert.False(t, sent.CreatedAt.IsZero(), "timestamp comes from the store")

	select {
	case got := <-msgs.C():
		require.Len(t, got, 1)
		assert.Equal(t, sent.ID, got[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("message feed not updated")
	}

	select {
	case got := <-convs.C():
		require.Len(t, got, 1)
		assert.Equal(t, key, got[0].Key)
		assert.Equal(t, "hello there", got[0].LastMessage)
		assert.ElementsMatch(t, []string{"a", "b"}, got[0].Participants)
	case <-time.After(2 * time.Second):
		t.Fatal("conversation list not updated")
	}
}

func TestMessagesAscendingAndPreviewTruncated(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	key := ChannelKey("general")

	for _, text := range []string{"first", "second", strings.Repeat("é", 200)} {
		_, err := svc.Send(ctx, key, "a", text)
		require.NoError(t, err)
	}
	_, err := svc.Send(ctx, key, "b", "from b")
	require.NoError(t, err)

	history, err := svc.History(ctx, key, repository.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "first", history[0].Text)
	assert.Equal(t, "from b", history[3].Text)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt))
	}

	conv, err := store.Conversations.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "general", conv.Name)
	assert.ElementsMatch(t, []string{"a", "b"}, conv.Participants)

	_, err = svc.Send(ctx, key, "a", strings.Repeat("x", 130))
	require.NoError(t, err)
	conv, err = store.Conversations.Get(ctx, key)
	require.NoError(t, err)
	assert.Len(t, []rune(conv.LastMessage), 120)

	list, err := svc.Conversations(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAuthorize(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Authorize("#general", "anyone")
	assert.NoError(t, err)
	_, err = svc.Authorize(DirectKey("a", "b"), "b")
	assert.NoError(t, err)
	_, err = svc.Authorize(DirectKey("a", "b"), "c")
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)
	_, err = svc.Authorize("#general", "")
	assert.ErrorIs(t, err, apperrors.ErrAuthFailure)
}
