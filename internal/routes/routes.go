package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/realtime-chat/config"
	"github.com/fathima-sithara/realtime-chat/internal/auth"
	"github.com/fathima-sithara/realtime-chat/internal/chat"
	"github.com/fathima-sithara/realtime-chat/internal/friends"
	"github.com/fathima-sithara/realtime-chat/internal/handlers"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/middleware"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/session"
	"github.com/fathima-sithara/realtime-chat/internal/users"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

// Pinger is a dependency /ready checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth     *auth.Service
	Users    *users.Service
	Friends  *friends.Service
	Chat     *chat.Service
	Presence *presence.Tracker
	Sessions *session.Manager
	WS       *ws.Server

	// RateLimit guards the protected API, AuthRateLimit the public auth routes. Either may be nil.
	RateLimit     fiber.Handler
	AuthRateLimit fiber.Handler

	Checks map[string]Pinger
}

// NewApp builds the fiber app with the shared middleware stack.
func NewApp(cfg *config.Config) *fiber.App {
	bodyLimit := 4 * 1024 * 1024
	if cfg.Media.MaxUploadBytes > bodyLimit {
		bodyLimit = cfg.Media.MaxUploadBytes
	}
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ErrorHandler:          handlers.ErrorHandler,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(middleware.Recovery())
	app.Use(middleware.Logger())
	app.Use(metrics.Middleware())
	return app
}

func Register(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/ready", ready(d.Checks))
	app.Get("/metrics", metrics.Handler())

	jwtMw := middleware.JWTAuth(d.Auth)
	sessions := handlers.NewSessions(d.Users, d.Sessions)

	api := app.Group("/api/v1")

	authH := handlers.NewAuthHandler(d.Auth, d.Sessions)
	public := api.Group("/auth", optional(d.AuthRateLimit))
	public.Post("/signup", authH.SignUp)
	public.Post("/signin", authH.SignIn)
	public.Post("/federated", authH.Federated)
	public.Post("/refresh", authH.Refresh)

	protected := api.Group("", jwtMw, optional(d.RateLimit))
	protected.Post("/auth/signout", authH.SignOut)

	userH := handlers.NewUserHandler(d.Users, d.Friends, d.Presence)
	protected.Get("/me", userH.Me)
	protected.Patch("/me", userH.UpdateMe)
	protected.Put("/me/avatar", userH.UploadAvatar)
	protected.Get("/users/lookup", userH.Lookup)
	protected.Get("/presence/:uid", userH.Presence)

	friendsH := handlers.NewFriendsHandler(sessions)
	protected.Get("/friends", friendsH.List)
	protected.Post("/friends", friendsH.Add)
	protected.Delete("/friends/:id", friendsH.Remove)
	protected.Post("/friends/:id/select", friendsH.Select)

	channelsH := handlers.NewChannelsHandler(sessions)
	protected.Get("/channels", channelsH.List)
	protected.Post("/channels", channelsH.Add)
	protected.Post("/channels/reorder", channelsH.Reorder)
	protected.Put("/channels/:name", channelsH.Rename)
	protected.Post("/channels/:name/select", channelsH.Select)
	protected.Get("/selection", channelsH.Selection)

	chatH := handlers.NewChatHandler(d.Chat)
	protected.Get("/conversations", chatH.Conversations)
	protected.Get("/conversations/with/:uid", chatH.With)
	protected.Get("/conversations/:key/messages", chatH.Messages)
	protected.Post("/conversations/:key/messages", chatH.Send)

	if d.WS != nil {
		app.Get("/ws", ws.Upgrade(), jwtMw, d.WS.Handler())
	}
}

func optional(h fiber.Handler) fiber.Handler {
	if h == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return h
}

func ready(checks map[string]Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := fiber.Map{}
		ok := true
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				status[name] = err.Error()
				ok = false
				continue
			}
			status[name] = "ok"
		}
		if !ok {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "checks": status})
		}
		return c.JSON(fiber.Map{"status": "ok", "checks": status})
	}
}
