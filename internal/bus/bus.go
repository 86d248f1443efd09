// Package bus carries change notifications between writers and live subscriptions,
// within one process or across instances through Redis, Kafka or NATS.
package bus

import (
	"context"
	"sync"
)

// Handler is invoked for every notification on a subscribed topic. It must not block.
type Handler func(topic string, payload []byte)

type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers h for topic and returns a function that removes it.
	Subscribe(topic string, h Handler) (unsubscribe func())
	Close() error
}

// Topic helpers keep naming consistent between publishers and subscribers.
func PresenceTopic(uid string) string      { return "presence:" + uid }
func FriendsTopic(ownerID string) string   { return "friends:" + ownerID }
func ConversationTopic(key string) string  { return "conversation:" + key }
func ConversationsTopic(uid string) string { return "conversations:" + uid }
func UserTopic(uid string) string          { return "user:" + uid }
func RoomTopic(room string) string         { return "room:" + room }

// registry fans a delivered notification out to the local handlers of its topic.
type registry struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
}

func newRegistry() *registry {
	return &registry{subs: map[string]map[uint64]Handler{}}
}

func (r *registry) add(topic string, h Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	if r.subs[topic] == nil {
		r.subs[topic] = map[uint64]Handler{}
	}
	r.subs[topic][id] = h
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs[topic], id)
			if len(r.subs[topic]) == 0 {
				delete(r.subs, topic)
			}
		})
	}
}

func (r *registry) dispatch(topic string, payload []byte) {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.subs[topic]))
	for _, h := range r.subs[topic] {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

func (r *registry) topics() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
