package bus

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Kafka relays notifications through one Kafka topic. The bus topic travels as the message key.
// Each instance reads with its own consumer group so every instance receives every notification.
type Kafka struct {
	writer *kafka.Writer
	reader *kafka.Reader
	reg    *registry
	cancel context.CancelFunc
	done   chan struct{}
}

// consumerGroup gives each instance its own group under base.
func consumerGroup(base string) string {
	if base == "" {
		base = "realtime-chat"
	}
	return base + "-" + uuid.NewString()
}

func NewKafka(cfg KafkaConfig) *Kafka {
	group := consumerGroup(cfg.GroupID)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     group,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	ctx, cancel := context.WithCancel(context.Background())
	k := &Kafka{writer: writer, reader: reader, reg: newRegistry(), cancel: cancel, done: make(chan struct{})}
	go k.run(ctx)
	return k
}

func (k *Kafka) run(ctx context.Context) {
	defer close(k.done)
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info().Msg("kafka bus consumer stopping")
				return
			}
			log.Error().Err(err).Msg("kafka read error")
			time.Sleep(time.Second)
			continue
		}
		k.reg.dispatch(string(msg.Key), msg.Value)
	}
}

func (k *Kafka) Publish(ctx context.Context, topic string, payload []byte) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(topic), Value: payload})
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("kafka publish failed")
	}
	return err
}

func (k *Kafka) Subscribe(topic string, h Handler) func() {
	return k.reg.add(topic, h)
}

func (k *Kafka) Close() error {
	k.cancel()
	<-k.done
	return errors.Join(k.reader.Close(), k.writer.Close())
}
