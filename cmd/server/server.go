package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/config"
	"github.com/fathima-sithara/realtime-chat/internal/auth"
	"github.com/fathima-sithara/realtime-chat/internal/bus"
	"github.com/fathima-sithara/realtime-chat/internal/cache"
	"github.com/fathima-sithara/realtime-chat/internal/chat"
	"github.com/fathima-sithara/realtime-chat/internal/discovery"
	"github.com/fathima-sithara/realtime-chat/internal/friends"
	"github.com/fathima-sithara/realtime-chat/internal/media"
	"github.com/fathima-sithara/realtime-chat/internal/middleware"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
	"github.com/fathima-sithara/realtime-chat/internal/routes"
	"github.com/fathima-sithara/realtime-chat/internal/session"
	"github.com/fathima-sithara/realtime-chat/internal/users"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

// Server owns every long-lived dependency of the process.
type Server struct {
	cfg       *config.Config
	app       *fiber.App
	store     *repository.Store
	cache     *cache.Client
	bus       bus.Bus
	hub       *ws.Hub
	sessions  *session.Manager
	tracker   *presence.Tracker
	registrar discovery.Registrar
	limiter   *middleware.IPRateLimiter
}

func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	store, err := repository.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.store = store

	if cfg.Redis.Addr != "" {
		if s.cache, err = cache.NewRedis(ctx, cfg); err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	if s.bus, err = bus.Open(ctx, cfg, s.rawRedis()); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("open bus: %w", err)
	}

	var (
		presenceStore presence.Store  = presence.NewMemoryStore()
		tokenStore    auth.TokenStore = auth.NewMemoryTokenStore()
	)
	if s.cache != nil {
		presenceStore = presence.NewRedisStore(s.cache)
		tokenStore = auth.NewRedisTokenStore(s.cache)
	}

	var federated *auth.FederatedVerifier
	if cfg.Federated.Enabled {
		pub, err := auth.LoadRSAPublicKey(cfg.Federated.PublicKeyPath)
		if err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("load federated key: %w", err)
		}
		federated = auth.NewFederatedVerifier(pub, cfg.Federated.Issuer, cfg.Federated.Audience)
	}

	var objects media.ObjectStore = media.NewMemoryStore()
	if cfg.Media.Enabled {
		if objects, err = media.NewS3Store(ctx, cfg.Media.Region, cfg.Media.Bucket, cfg.Media.Endpoint, cfg.Media.PublicRead); err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("init s3: %w", err)
		}
	}
	avatars := media.NewAvatarService(objects, cfg.Media.AvatarSize, cfg.Media.MaxUploadBytes, media.BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		Interval:    time.Duration(cfg.Breaker.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.Breaker.TimeoutSeconds) * time.Second,
	})
	avatars.SetMaxDimension(cfg.Media.MaxDimension)

	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.AccessTTL(), cfg.RefreshTTL())
	authSvc := auth.NewService(store.Users, tokens, tokenStore, federated)
	usersSvc := users.NewService(store.Users, s.bus, avatars)
	friendsSvc := friends.NewService(store.Users, store.Friends, s.bus)
	chatSvc := chat.NewService(store.Conversations, s.bus)
	tracker := presence.NewTracker(presenceStore, s.bus, cfg.PresenceTTL())
	s.tracker = tracker
	go tracker.Run()
	s.sessions = session.NewManager(friendsSvc, tracker, cfg.Channels.Defaults)
	go s.sessions.Run(cfg.SessionIdle())

	s.hub = ws.NewHub(s.bus)
	go s.hub.Run()
	wsSrv := ws.NewServer(s.hub, s.sessions, usersSvc, chatSvc, tracker, ws.Options{
		PingInterval:      cfg.PingInterval(),
		WriteDeadline:     cfg.WriteDeadline(),
		MaxMessageSize:    cfg.WS.MaxMessageSizeBytes,
		MessagesPerSecond: cfg.WS.MessagesPerSecond,
		Burst:             cfg.WS.Burst,
	})

	checks := map[string]routes.Pinger{"store": store}
	var apiLimit, authLimit fiber.Handler
	if s.cache != nil {
		checks["redis"] = s.cache
		apiLimit = middleware.NewRateLimiter(s.cache, "api", cfg.RateLimit.PerMinute, time.Minute).MiddlewareByKey(middleware.ByUserOrIP)
		authLimit = middleware.NewRateLimiter(s.cache, "auth", cfg.RateLimit.AuthPerMinute, time.Minute).MiddlewareByKey(middleware.ByUserOrIP)
	} else {
		s.limiter = middleware.NewIPRateLimiter(cfg.RateLimit.PerMinute, 0)
		apiLimit = s.limiter.Handler()
	}

	s.app = routes.NewApp(cfg)
	routes.Register(s.app, routes.Deps{
		Auth:          authSvc,
		Users:         usersSvc,
		Friends:       friendsSvc,
		Chat:          chatSvc,
		Presence:      tracker,
		Sessions:      s.sessions,
		WS:            wsSrv,
		RateLimit:     apiLimit,
		AuthRateLimit: authLimit,
		Checks:        checks,
	})

	if s.registrar, err = discovery.New(cfg); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("init discovery: %w", err)
	}
	return s, nil
}

func (s *Server) rawRedis() *redis.Client {
	if s.cache == nil {
		return nil
	}
	return s.cache.Raw()
}

// Start listens until the app is shut down.
func (s *Server) Start(ctx context.Context) error {
	if err := s.registrar.Register(ctx); err != nil {
		log.Warn().Err(err).Msg("service registration failed")
	}
	addr := ":" + s.cfg.App.Port
	log.Info().Str("addr", addr).Str("store", s.cfg.Store.Driver).Str("bus", s.cfg.Bus.Driver).Msg("starting realtime-chat")
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests, drops every websocket (presence goes offline)
// and closes the backing connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.registrar.Deregister(ctx); err != nil {
		log.Warn().Err(err).Msg("service deregistration failed")
	}
	s.sessions.Shutdown(ctx)
	s.tracker.Close()
	s.hub.Shutdown()
	err := s.app.ShutdownWithContext(ctx)
	s.close(ctx)
	return err
}

func (s *Server) close(ctx context.Context) {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			log.Warn().Err(err).Msg("close bus")
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}
}
