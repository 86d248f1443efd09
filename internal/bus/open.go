package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/config"
)

// Open builds the Bus selected by cfg.Bus.Driver. rdb may be nil unless the driver is redis.
func Open(ctx context.Context, cfg *config.Config, rdb *redis.Client) (Bus, error) {
	switch cfg.Bus.Driver {
	case "memory":
		return NewMemory(), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis bus requires a redis client")
		}
		return NewRedis(ctx, rdb, cfg.Redis.Prefix)
	case "kafka":
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("using kafka bus")
		return NewKafka(KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic, GroupID: cfg.Kafka.GroupID}), nil
	case "nats":
		return NewNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Bus.Driver)
	}
}
