package bus

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const topicHeader = "Chat-Topic"

// NATS relays notifications on a single subject; the bus topic rides in a header
// since topics may contain characters NATS reserves for subject tokens.
type NATS struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	reg     *registry
}

func NewNATS(url, subjectPrefix string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("realtime-chat"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return newNATS(nc, subjectPrefix+".bus")
}

func newNATS(nc *nats.Conn, subject string) (*NATS, error) {
	n := &NATS{nc: nc, subject: subject, reg: newRegistry()}
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		topic := m.Header.Get(topicHeader)
		if topic == "" {
			return
		}
		n.reg.dispatch(topic, m.Data)
	})
	if err != nil {
		nc.Close()
		return nil, err
	}
	n.sub = sub
	return n, nil
}

func (n *NATS) Publish(_ context.Context, topic string, payload []byte) error {
	msg := nats.NewMsg(n.subject)
	msg.Header.Set(topicHeader, topic)
	msg.Data = payload
	if err := n.nc.PublishMsg(msg); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("nats publish failed")
		return err
	}
	return nil
}

func (n *NATS) Subscribe(topic string, h Handler) func() {
	return n.reg.add(topic, h)
}

func (n *NATS) Close() error {
	if err := n.sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("nats unsubscribe failed")
	}
	return n.nc.Drain()
}
