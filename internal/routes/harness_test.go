package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/config"
	"github.com/fathima-sithara/realtime-chat/internal/auth"
	"github.com/fathima-sithara/realtime-chat/internal/bus"
	"github.com/fathima-sithara/realtime-chat/internal/chat"
	"github.com/fathima-sithara/realtime-chat/internal/friends"
	"github.com/fathima-sithara/realtime-chat/internal/media"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
	"github.com/fathima-sithara/realtime-chat/internal/session"
	"github.com/fathima-sithara/realtime-chat/internal/users"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

type harness struct {
	app      *fiber.App
	hub      *ws.Hub
	tracker  *presence.Tracker
	sessions *session.Manager
	objects  *media.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Name = "realtime-chat-test"

	store := repository.NewMemoryStore()
	b := bus.NewMemory()
	objects := media.NewMemoryStore()
	avatars := media.NewAvatarService(objects, 32, 1<<20, media.BreakerSettings{MaxFailures: 3, Interval: time.Minute, Timeout: time.Minute})

	tokens := auth.NewTokenManager("test-secret", "realtime-chat", 15*time.Minute, time.Hour)
	authSvc := auth.NewService(store.Users, tokens, auth.NewMemoryTokenStore(), nil)
	usersSvc := users.NewService(store.Users, b, avatars)
	friendsSvc := friends.NewService(store.Users, store.Friends, b)
	chatSvc := chat.NewService(store.Conversations, b)
	tracker := presence.NewTracker(presence.NewMemoryStore(), b, time.Minute)
	go tracker.Run()
	t.Cleanup(tracker.Close)
	sessions := session.NewManager(friendsSvc, tracker, nil)

	hub := ws.NewHub(b)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	wsSrv := ws.NewServer(hub, sessions, usersSvc, chatSvc, tracker, ws.Options{
		PingInterval:  time.Second,
		WriteDeadline: time.Second,
	})

	app := NewApp(cfg)
	Register(app, Deps{
		Auth:     authSvc,
		Users:    usersSvc,
		Friends:  friendsSvc,
		Chat:     chatSvc,
		Presence: tracker,
		Sessions: sessions,
		WS:       wsSrv,
		Checks:   map[string]Pinger{"store": store},
	})
	return &harness{app: app, hub: hub, tracker: tracker, sessions: sessions, objects: objects}
}

type result struct {
	Status int
	Body   map[string]any
}

func (h *harness) do(t *testing.T, method, path, token string, body any) result {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return h.send(t, req)
}

func (h *harness) send(t *testing.T, req *http.Request) result {
	t.Helper()
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := result{Status: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out.Body))
	}
	return out
}

// signUp creates an account and returns its id and access token.
func (h *harness) signUp(t *testing.T, email, name string) (string, string) {
	t.Helper()
	res := h.do(t, "POST", "/api/v1/auth/signup", "", map[string]string{
		"email": email, "password": "hunter22", "display_name": name,
	})
	require.Equal(t, fiber.StatusCreated, res.Status, res.Body)
	user := res.Body["user"].(map[string]any)
	tokens := res.Body["tokens"].(map[string]any)
	return user["id"].(string), tokens["access_token"].(string)
}

func obj(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected object, got %T", v)
	return m
}

func list(t *testing.T, v any) []any {
	t.Helper()
	l, ok := v.([]any)
	require.True(t, ok, "expected array, got %T", v)
	return l
}
