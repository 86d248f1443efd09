package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/bus"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
)

// Hub tracks the clients of this instance and the signaling rooms they joined.
// Room traffic goes through the bus so members on other instances receive it too.
type Hub struct {
	bus bus.Bus

	register   chan *Client
	unregister chan *Client
	clients    map[*Client]struct{}

	mu    sync.RWMutex
	rooms map[string]*room
	count int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type room struct {
	members map[*Client]struct{}
	unsub   func()
}

func NewHub(b bus.Bus) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		bus:        b,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    map[*Client]struct{}{},
		rooms:      map[string]*room{},
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run owns the client set until Shutdown, then drops every remaining client.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount(len(h.clients))
			metrics.WSConnections.Inc()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.setCount(len(h.clients))
				metrics.WSConnections.Dec()
			}
		case <-h.ctx.Done():
			for c := range h.clients {
				go c.drop()
			}
			metrics.WSConnections.Sub(float64(len(h.clients)))
			h.clients = map[*Client]struct{}{}
			h.setCount(0)
			return
		}
	}
}

func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Count is the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done
}

// Join adds c to name and announces it to the other members.
func (h *Hub) Join(ctx context.Context, name string, c *Client) {
	h.mu.Lock()
	r, ok := h.rooms[name]
	if !ok {
		r = &room{members: map[*Client]struct{}{}}
		r.unsub = h.bus.Subscribe(bus.RoomTopic(name), h.deliver)
		h.rooms[name] = r
	}
	_, already := r.members[c]
	r.members[c] = struct{}{}
	h.mu.Unlock()

	if !already {
		h.Relay(ctx, RoomEvent{Type: TypeUserJoined, Room: name, From: c.uid, FromConn: c.id})
	}
}

// Leave removes c from name and tells the remaining members.
func (h *Hub) Leave(ctx context.Context, name string, c *Client) {
	h.mu.Lock()
	r, ok := h.rooms[name]
	if !ok {
		h.mu.Unlock()
		return
	}
	_, member := r.members[c]
	delete(r.members, c)
	var unsub func()
	if len(r.members) == 0 {
		unsub = r.unsub
		delete(h.rooms, name)
	}
	h.mu.Unlock()

	if member {
		h.Relay(ctx, RoomEvent{Type: TypeUserLeft, Room: name, From: c.uid, FromConn: c.id})
	}
	if unsub != nil {
		unsub()
	}
}

func (h *Hub) InRoom(name string, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[name]
	if !ok {
		return false
	}
	_, ok = r.members[c]
	return ok
}

// Relay publishes ev to every member of its room, on every instance.
func (h *Hub) Relay(ctx context.Context, ev RoomEvent) {
	b, err := json.Marshal(roomWire{RoomEvent: ev, Conn: ev.FromConn})
	if err != nil {
		log.Error().Err(err).Msg("encode room event")
		return
	}
	if err := h.bus.Publish(ctx, bus.RoomTopic(ev.Room), b); err != nil {
		log.Warn().Err(err).Str("room", ev.Room).Str("type", ev.Type).Msg("room relay failed")
	}
}

func (h *Hub) deliver(_ string, payload []byte) {
	var w roomWire
	if err := json.Unmarshal(payload, &w); err != nil {
		log.Warn().Err(err).Msg("decode room event")
		return
	}
	h.mu.RLock()
	r, ok := h.rooms[w.Room]
	var targets []*Client
	if ok {
		for c := range r.members {
			if c.id == w.Conn || (w.To != "" && c.uid != w.To) {
				continue
			}
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.emit(w.Type, "", w.RoomEvent)
	}
}
