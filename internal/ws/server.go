package ws

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/chat"
	"github.com/fathima-sithara/realtime-chat/internal/middleware"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/realtime"
	"github.com/fathima-sithara/realtime-chat/internal/session"
	"github.com/fathima-sithara/realtime-chat/internal/users"
)

type Options struct {
	PingInterval      time.Duration
	WriteDeadline     time.Duration
	MaxMessageSize    int64
	MessagesPerSecond float64
	Burst             int
}

func (o Options) pongWait() time.Duration {
	return o.PingInterval * 5 / 2
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteDeadline <= 0 {
		o.WriteDeadline = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 10
	}
	if o.Burst <= 0 {
		o.Burst = 20
	}
	return o
}

// Server upgrades authenticated requests to websocket clients.
type Server struct {
	hub      *Hub
	sessions *session.Manager
	users    *users.Service
	chat     *chat.Service
	presence *presence.Tracker
	opts     Options
}

func NewServer(hub *Hub, sessions *session.Manager, u *users.Service, c *chat.Service, p *presence.Tracker, opts Options) *Server {
	return &Server{hub: hub, sessions: sessions, users: u, chat: c, presence: p, opts: opts.withDefaults()}
}

// Upgrade rejects plain HTTP requests to the websocket route. It runs after JWTAuth.
func Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (s *Server) Handler() fiber.Handler {
	return websocket.New(s.serve)
}

func (s *Server) serve(wc *websocket.Conn) {
	uid, _ := wc.Locals(middleware.LocalUserID).(string)
	ctx := context.Background()

	u, err := s.users.Get(ctx, uid)
	if err != nil {
		log.Warn().Err(err).Str("uid", uid).Msg("websocket user lookup failed")
		_ = wc.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown user"))
		_ = wc.Close()
		return
	}

	sess := s.sessions.Init(ctx, u)
	conn := realtime.NewConn(uuid.NewString())
	client := newClient(s, wc, conn, sess)
	if !s.hub.Register(client) {
		_ = wc.Close()
		return
	}

	s.sessions.Attach(ctx, sess, conn)
	conn.OnDisconnect(func(context.Context) { go client.drop() })
	log.Debug().Str("conn", client.id).Str("uid", uid).Msg("websocket client connected")

	go client.writePump()
	client.readPump()
	<-client.written
}
