package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/config"
)

// Open builds the Store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.Store.Driver {
	case "mongo":
		client, err := NewMongoClient(ctx, cfg.Mongo.URI, 30*time.Second)
		if err != nil {
			return nil, err
		}
		store, err := NewMongoStore(ctx, client, client.Database(cfg.Mongo.Database))
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongo")
		return store, nil
	case "sqlite":
		db, err := OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLite.Path).Msg("opened sqlite store")
		return NewSQLiteStore(db), nil
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
