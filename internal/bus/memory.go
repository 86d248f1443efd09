package bus

import "context"

// Memory delivers notifications to handlers in this process only.
type Memory struct {
	reg *registry
}

func NewMemory() *Memory {
	return &Memory{reg: newRegistry()}
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.reg.dispatch(topic, payload)
	return nil
}

func (m *Memory) Subscribe(topic string, h Handler) func() {
	return m.reg.add(topic, h)
}

func (m *Memory) Close() error { return nil }
