package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/bus"
)

func TestConnDropRunsHooksOnce(t *testing.T) {
	c := NewConn("c1")
	var order []int
	c.OnDisconnect(func(context.Context) { order = append(order, 1) })
	c.OnDisconnect(func(context.Context) { order = append(order, 2) })

	c.Drop(context.Background())
	c.Drop(context.Background())

	assert.Equal(t, []int{1, 2}, order)
	assert.True(t, c.Dropped())
	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed")
	}

	c.OnDisconnect(func(context.Context) { order = append(order, 3) })
	assert.Equal(t, []int{1, 2, 3}, order, "late registration runs immediately")
}

func next[T any](t *testing.T, s *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
	var zero T
	return zero
}

func TestFeedDeliversSnapshotThenUpdates(t *testing.T) {
	b := bus.NewMemory()
	var state atomic.Int64
	feed := NewFeed("counter", b, func(context.Context) (int64, error) {
		return state.Load(), nil
	}, "counter")

	sub := feed.Subscribe(context.Background())
	defer sub.Close()

	assert.Equal(t, int64(0), next(t, sub))

	state.Store(5)
	require.NoError(t, b.Publish(context.Background(), "counter", nil))
	assert.Equal(t, int64(5), next(t, sub))
}

func TestFeedLatestWins(t *testing.T) {
	b := bus.NewMemory()
	var state atomic.Int64
	feed := NewFeed("counter", b, func(context.Context) (int64, error) {
		return state.Load(), nil
	}, "counter")

	sub := feed.Subscribe(context.Background())
	defer sub.Close()
	next(t, sub)

	for i := int64(1); i <= 20; i++ {
		state.Store(i)
		require.NoError(t, b.Publish(context.Background(), "counter", nil))
	}

	assert.Eventually(t, func() bool {
		select {
		case v := <-sub.C():
			return v == 20
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFeedSkipsFailedReloads(t *testing.T) {
	b := bus.NewMemory()
	var fail atomic.Bool
	var calls atomic.Int64
	feed := NewFeed("flaky", b, func(context.Context) (int64, error) {
		n := calls.Add(1)
		if fail.Load() {
			return 0, errors.New("boom")
		}
		return n, nil
	}, "t")

	sub := feed.Subscribe(context.Background())
	defer sub.Close()
	assert.Equal(t, int64(1), next(t, sub))

	fail.Store(true)
	require.NoError(t, b.Publish(context.Background(), "t", nil))
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	select {
	case v := <-sub.C():
		t.Fatalf("unexpected delivery %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	b := bus.NewMemory()
	feed := NewFeed("static", b, func(context.Context) (string, error) { return "x", nil }, "t")
	sub := feed.Subscribe(context.Background())

	first := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := range sub.All() {
			select {
			case first <- v:
			default:
			}
		}
	}()

	assert.Equal(t, "x", <-first)
	sub.Close()
	sub.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("range did not finish after Close")
	}
	require.NoError(t, b.Publish(context.Background(), "t", nil))
}
