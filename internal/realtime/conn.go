package realtime

import (
	"context"
	"sync"
)

// Conn is the server-side record of one client connection. Actions registered with
// OnDisconnect run once when the connection is dropped, however that happens.
type Conn struct {
	id string

	mu      sync.Mutex
	hooks   []func(ctx context.Context)
	dropped bool
	done    chan struct{}
}

func NewConn(id string) *Conn {
	return &Conn{id: id, done: make(chan struct{})}
}

func (c *Conn) ID() string { return c.id }

// OnDisconnect registers fn. If the connection is already gone fn runs immediately.
func (c *Conn) OnDisconnect(fn func(ctx context.Context)) {
	c.mu.Lock()
	if c.dropped {
		c.mu.Unlock()
		fn(context.Background())
		return
	}
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Drop marks the connection gone and runs registered actions in registration order.
// Later calls are no-ops.
func (c *Conn) Drop(ctx context.Context) {
	c.mu.Lock()
	if c.dropped {
		c.mu.Unlock()
		return
	}
	c.dropped = true
	hooks := c.hooks
	c.hooks = nil
	close(c.done)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Dropped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
