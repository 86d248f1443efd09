package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/config"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis connects to Redis, retrying the initial ping with exponential backoff.
func NewRedis(ctx context.Context, cfg *config.Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(func() error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed, retrying")
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	return New(rdb, cfg.Redis.Prefix), nil
}

// New wraps an existing client. Every key is namespaced with prefix.
func New(rdb *redis.Client, prefix string) *Client {
	return &Client{rdb: rdb, prefix: prefix}
}

func (c *Client) Raw() *redis.Client { return c.rdb }

func (c *Client) Prefix() string { return c.prefix }

func (c *Client) Key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.Key(key), value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, c.Key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.Key(k))
	}
	return c.rdb.Del(ctx, full...).Err()
}

// GetDel reads and removes key atomically, so a value can be consumed once.
func (c *Client) GetDel(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.GetDel(ctx, c.Key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

const luaRateLimit = `
local current = redis.call("incr", KEYS[1])
if current == 1 then
  redis.call("pexpire", KEYS[1], ARGV[1])
end
return current
`

var rateLimitScript = redis.NewScript(luaRateLimit)

// Allow counts a hit against key in a fixed window and reports whether it is within limit.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := rateLimitScript.Run(ctx, c.rdb, []string{c.Key("rate", key)}, window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return count <= limit, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
