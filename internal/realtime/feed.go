package realtime

import (
	"context"
	"iter"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/bus"
)

// Loader reads the full current state of a feed.
type Loader[T any] func(ctx context.Context) (T, error)

// Feed is a live query: a loader plus the bus topics whose notifications invalidate it.
type Feed[T any] struct {
	name   string
	bus    bus.Bus
	topics []string
	load   Loader[T]
}

func NewFeed[T any](name string, b bus.Bus, load Loader[T], topics ...string) *Feed[T] {
	return &Feed[T]{name: name, bus: b, topics: topics, load: load}
}

func (f *Feed[T]) Snapshot(ctx context.Context) (T, error) {
	return f.load(ctx)
}

// Subscribe delivers one snapshot immediately and a fresh one after every notification
// on the feed's topics, until Close or ctx is done. A consumer that falls behind only
// ever sees the latest snapshot.
func (f *Feed[T]) Subscribe(ctx context.Context) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		ch:     make(chan T, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	poke := make(chan struct{}, 1)
	notify := func(string, []byte) {
		select {
		case poke <- struct{}{}:
		default:
		}
	}
	unsubs := make([]func(), 0, len(f.topics))
	for _, topic := range f.topics {
		unsubs = append(unsubs, f.bus.Subscribe(topic, notify))
	}

	go func() {
		defer close(s.done)
		defer close(s.ch)
		defer func() {
			for _, u := range unsubs {
				u()
			}
		}()

		f.reload(ctx, s)
		for {
			select {
			case <-ctx.Done():
				return
			case <-poke:
				f.reload(ctx, s)
			}
		}
	}()
	return s
}

func (f *Feed[T]) reload(ctx context.Context, s *Subscription[T]) {
	v, err := f.load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("feed", f.name).Msg("feed reload failed")
		}
		return
	}
	s.deliver(v)
}

// Subscription is one consumer's view of a Feed.
type Subscription[T any] struct {
	ch     chan T
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// deliver replaces any undelivered snapshot with v. Only the feed goroutine calls it.
func (s *Subscription[T]) deliver(v T) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Close stops delivery and waits for the feed goroutine to exit. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// All ranges over snapshots until the subscription is closed.
func (s *Subscription[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range s.ch {
			if !yield(v) {
				return
			}
		}
	}
}
