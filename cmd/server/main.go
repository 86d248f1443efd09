package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/config"
	"github.com/fathima-sithara/realtime-chat/internal/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout()*3)
	srv, err := NewServer(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(context.Background())
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error().Err(err).Msg("server error")
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down server")
	}
	log.Info().Msg("shutdown complete")
}
