package bus

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis relays notifications over Redis pub/sub so every instance sees every write.
type Redis struct {
	client *redis.Client
	prefix string
	reg    *registry
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedis(ctx context.Context, client *redis.Client, prefix string) (*Redis, error) {
	b := &Redis{
		client: client,
		prefix: prefix + ":bus:",
		reg:    newRegistry(),
		done:   make(chan struct{}),
	}
	b.ps = client.PSubscribe(ctx, b.prefix+"*")
	// wait for the subscription confirmation so early publishes are not lost
	if _, err := b.ps.Receive(ctx); err != nil {
		_ = b.ps.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.run(runCtx)
	return b, nil
}

func (b *Redis) run(ctx context.Context) {
	defer close(b.done)
	ch := b.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			topic := strings.TrimPrefix(msg.Channel, b.prefix)
			b.reg.dispatch(topic, []byte(msg.Payload))
		}
	}
}

func (b *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, b.prefix+topic, payload).Err(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("redis publish failed")
		return err
	}
	return nil
}

func (b *Redis) Subscribe(topic string, h Handler) func() {
	return b.reg.add(topic, h)
}

func (b *Redis) Close() error {
	b.cancel()
	err := b.ps.Close()
	<-b.done
	return err
}
