package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/bus"
	"github.com/fathima-sithara/realtime-chat/internal/friends"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/realtime"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
)

func newManager(t *testing.T) (*Manager, *presence.Tracker, *repository.Store) {
	t.Helper()
	store := repository.NewMemoryStore()
	b := bus.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Users.Create(ctx, &models.User{ID: "u1", DisplayName: "Ann", Email: "ann@x.io"}))
	require.NoError(t, store.Users.Create(ctx, &models.User{ID: "u2", DisplayName: "Bob", Email: "bob@x.io"}))
	tracker := presence.NewTracker(presence.NewMemoryStore(), b, time.Minute)
	return NewManager(friends.NewService(store.Users, store.Friends, b), tracker, nil), tracker, store
}

func online(t *testing.T, tr *presence.Tracker, uid string) bool {
	t.Helper()
	p, err := tr.Get(context.Background(), uid)
	require.NoError(t, err)
	return p.State == models.Online
}

func TestInitIsIdempotentAndSelectsFirstChannel(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	user := &models.User{ID: "u1"}

	s := m.Init(ctx, user)
	assert.Same(t, s, m.Init(ctx, user))
	assert.Equal(t, []string{"general", "random", "help", "announcements"}, s.Channels.List())
	assert.Equal(t, models.Target{Kind: models.KindChannel, ID: "general"}, s.Selection.Current())
}

func TestAttachBindsPresenceToConnection(t *testing.T) {
	m, tracker, _ := newManager(t)
	ctx := context.Background()
	s := m.Init(ctx, &models.User{ID: "u1"})

	conn := realtime.NewConn("c1")
	m.Attach(ctx, s, conn)
	assert.True(t, online(t, tracker, "u1"))
	assert.Equal(t, 1, s.Connections())

	conn.Drop(ctx)
	assert.False(t, online(t, tracker, "u1"))
	assert.Equal(t, 0, s.Connections())
}

func TestTeardownDropsConnectionsAndStopsPresence(t *testing.T) {
	m, tracker, _ := newManager(t)
	ctx := context.Background()
	s := m.Init(ctx, &models.User{ID: "u1"})
	c1, c2 := realtime.NewConn("c1"), realtime.NewConn("c2")
	m.Attach(ctx, s, c1)
	m.Attach(ctx, s, c2)

	m.Teardown(ctx, "u1")
	assert.True(t, c1.Dropped())
	assert.True(t, c2.Dropped())
	assert.False(t, online(t, tracker, "u1"))
	_, ok := m.Get("u1")
	assert.False(t, ok)
}

func TestWatchReceivesChannelAndSelectionChanges(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	s := m.Init(ctx, &models.User{ID: "u1"})

	var mu sync.Mutex
	var states []State
	cancel := s.Watch(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	_, err := s.Channels.Add("Design")
	require.NoError(t, err)

	_, err = s.Friends.Add(ctx, "Bob")
	require.NoError(t, err)
	_, err = s.Friends.Select(ctx, "u2")
	require.NoError(t, err)

	cancel()
	_, err = s.Channels.Add("after")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.Equal(t, models.Target{Kind: models.KindDirect, ID: "u2"}, last.Selected)
	assert.Contains(t, last.Channels, "design")
	assert.NotContains(t, last.Channels, "after")
}

func TestEvictRemovesOnlyIdleDisconnectedSessions(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	idle := m.Init(ctx, &models.User{ID: "u1"})
	connected := m.Init(ctx, &models.User{ID: "u2"})
	conn := realtime.NewConn("c2")
	m.Attach(ctx, connected, conn)

	clock = clock.Add(20 * time.Minute)
	assert.Equal(t, 0, m.Evict(30*time.Minute))

	clock = clock.Add(20 * time.Minute)
	assert.Equal(t, 1, m.Evict(30*time.Minute))
	_, ok := m.Get("u1")
	assert.False(t, ok)
	_, ok = m.Get("u2")
	assert.True(t, ok, "sessions with a live connection stay")

	assert.NotSame(t, idle, m.Init(ctx, &models.User{ID: "u1"}), "an evicted user gets a fresh session")

	conn.Drop(ctx)
	clock = clock.Add(10 * time.Minute)
	assert.Equal(t, 0, m.Evict(30*time.Minute), "the disconnect counts as activity")
	clock = clock.Add(25 * time.Minute)
	assert.Equal(t, 2, m.Evict(30*time.Minute))
	_, ok = m.Get("u2")
	assert.False(t, ok)
}

func TestInitKeepsSessionAlive(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	s := m.Init(ctx, &models.User{ID: "u1"})
	clock = clock.Add(25 * time.Minute)
	m.Init(ctx, &models.User{ID: "u1"})
	clock = clock.Add(25 * time.Minute)
	assert.Equal(t, 0, m.Evict(30*time.Minute))
	got, ok := m.Get("u1")
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestAttachRestoresEvictedSession(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	s := m.Init(ctx, &models.User{ID: "u1"})
	clock = clock.Add(time.Hour)
	require.Equal(t, 1, m.Evict(30*time.Minute))

	m.Attach(ctx, s, realtime.NewConn("c1"))
	got, ok := m.Get("u1")
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestRunStopsOnClose(t *testing.T) {
	m, _, _ := newManager(t)
	done := make(chan struct{})
	go func() {
		m.Run(time.Hour)
		close(done)
	}()
	m.Close()
	m.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}
