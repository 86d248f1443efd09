package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/realtime"
	"github.com/fathima-sithara/realtime-chat/internal/repository"
	"github.com/fathima-sithara/realtime-chat/internal/session"
)

const sendBuffer = 256

var errRateLimited = errors.New("rate limit exceeded")

// Client is one websocket connection of a signed-in user.
type Client struct {
	id   string
	uid  string
	ws   *websocket.Conn
	conn *realtime.Conn
	sess *session.Session
	srv  *Server

	send    chan []byte
	written chan struct{}
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[string]func()
	rooms  map[string]struct{}
	closed bool
	once   sync.Once
}

func newClient(srv *Server, ws *websocket.Conn, conn *realtime.Conn, sess *session.Session) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:      conn.ID(),
		uid:     sess.UserID,
		ws:      ws,
		conn:    conn,
		sess:    sess,
		srv:     srv,
		send:    make(chan []byte, sendBuffer),
		written: make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(srv.opts.MessagesPerSecond), srv.opts.Burst),
		ctx:     ctx,
		cancel:  cancel,
		subs:    map[string]func(){},
		rooms:   map[string]struct{}{},
	}
}

// emit queues a frame. A client whose buffer is full is dropped.
func (c *Client) emit(typ, id string, v any) {
	b, err := encode(typ, id, v)
	if err != nil {
		log.Error().Err(err).Str("type", typ).Msg("encode frame")
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- b:
		c.mu.Unlock()
		metrics.WSFrames.WithLabelValues("out", typ).Inc()
	default:
		c.mu.Unlock()
		log.Warn().Str("conn", c.id).Str("uid", c.uid).Msg("slow consumer dropped")
		go c.drop()
	}
}

func (c *Client) fail(id string, err error) {
	c.emit(TypeError, id, errorData(err))
}

func (c *Client) readPump() {
	defer c.drop()

	opts := c.srv.opts
	c.ws.SetReadLimit(opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(opts.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(opts.pongWait()))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn", c.id).Msg("websocket read")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(opts.pongWait()))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.fail("", fmt.Errorf("malformed frame: %w", apperrors.ErrInvalidInput))
			continue
		}
		metrics.WSFrames.WithLabelValues("in", env.Type).Inc()
		if !c.limiter.Allow() {
			c.emit(TypeError, env.ID, ErrorData{Code: "rate_limited", Message: errRateLimited.Error()})
			continue
		}
		c.handle(env)
	}
}

func (c *Client) writePump() {
	opts := c.srv.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.written)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteDeadline))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(opts.WriteDeadline))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(env Envelope) {
	ctx := c.ctx
	switch env.Type {
	case TypePing:
		c.srv.presence.Heartbeat(ctx, c.uid)
		c.emit(TypePong, env.ID, nil)

	case TypeSubscribe:
		var d SubscribeData
		if err := decode(env.Data, &d); err != nil {
			c.fail(env.ID, err)
			return
		}
		if err := c.subscribe(env.ID, d); err != nil {
			c.fail(env.ID, err)
		}

	case TypeUnsubscribe:
		c.unsubscribe(env.ID)

	case TypeMessageSend:
		var d SendData
		if err := decode(env.Data, &d); err != nil {
			c.fail(env.ID, err)
			return
		}
		msg, err := c.srv.chat.Send(ctx, d.Key, c.uid, d.Text)
		if err != nil {
			c.fail(env.ID, err)
			return
		}
		c.emit(TypeMessageSent, env.ID, msg)

	case TypeJoinRoom, TypeLeaveRoom:
		var d RoomData
		if err := decode(env.Data, &d); err != nil || d.Room == "" {
			c.fail(env.ID, fmt.Errorf("room is required: %w", apperrors.ErrInvalidInput))
			return
		}
		if env.Type == TypeJoinRoom {
			c.joinRoom(d.Room)
		} else {
			c.leaveRoom(d.Room)
		}

	case TypeOffer, TypeAnswer, TypeICECandidate:
		var d SignalData
		if err := decode(env.Data, &d); err != nil {
			c.fail(env.ID, err)
			return
		}
		if !c.srv.hub.InRoom(d.Room, c) {
			c.fail(env.ID, fmt.Errorf("not in room %q: %w", d.Room, apperrors.ErrNotFound))
			return
		}
		c.srv.hub.Relay(ctx, RoomEvent{Type: env.Type, Room: d.Room, From: c.uid, FromConn: c.id, To: d.To, Payload: d.Payload})

	default:
		c.fail(env.ID, fmt.Errorf("unknown type %q: %w", env.Type, apperrors.ErrInvalidInput))
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("data is required: %w", apperrors.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed data: %w", apperrors.ErrInvalidInput)
	}
	return nil
}

// subscribe starts a feed under id, replacing any subscription already using it.
func (c *Client) subscribe(id string, d SubscribeData) error {
	if id == "" {
		id = d.Feed + ":" + d.Key
	}
	var stop func()
	switch d.Feed {
	case FeedFriends:
		stop = forward(c, id, d.Feed, "", c.sess.Friends.Subscribe(c.ctx))
	case FeedConversation:
		if _, err := c.srv.chat.Authorize(d.Key, c.uid); err != nil {
			return err
		}
		limit := d.Limit
		if limit <= 0 {
			limit = repository.DefaultMessageLimit
		}
		stop = forward(c, id, d.Feed, d.Key, c.srv.chat.Subscribe(c.ctx, d.Key, limit))
	case FeedConversations:
		stop = forward(c, id, d.Feed, "", c.srv.chat.SubscribeConversations(c.ctx, c.uid))
	case FeedPresence:
		if d.Key == "" {
			return fmt.Errorf("presence feed needs a user id: %w", apperrors.ErrInvalidInput)
		}
		stop = forward(c, id, d.Feed, d.Key, c.srv.presence.Feed(d.Key).Subscribe(c.ctx))
	case FeedMe:
		stop = forward(c, id, d.Feed, "", c.srv.users.Feed(c.uid).Subscribe(c.ctx))
	case FeedChannels:
		c.emit(TypeChannels, id, c.sess.State())
		stop = c.sess.Watch(func(st session.State) { c.emit(TypeChannels, id, st) })
	default:
		return fmt.Errorf("unknown feed %q: %w", d.Feed, apperrors.ErrInvalidInput)
	}

	metrics.FeedSubscriptions.WithLabelValues(d.Feed).Inc()
	feed := d.Feed
	closer := func() {
		stop()
		metrics.FeedSubscriptions.WithLabelValues(feed).Dec()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		closer()
		return nil
	}
	prev := c.subs[id]
	c.subs[id] = closer
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

func (c *Client) unsubscribe(id string) {
	c.mu.Lock()
	stop := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// forward relays every snapshot of sub to the client until sub is closed.
func forward[T any](c *Client, id, feed, key string, sub *realtime.Subscription[T]) func() {
	go func() {
		for v := range sub.All() {
			c.emit(TypeSnapshot, id, Snapshot{Feed: feed, Key: key, Items: v})
		}
	}()
	return sub.Close
}

func (c *Client) joinRoom(name string) {
	c.mu.Lock()
	c.rooms[name] = struct{}{}
	c.mu.Unlock()
	c.srv.hub.Join(c.ctx, name, c)
}

func (c *Client) leaveRoom(name string) {
	c.mu.Lock()
	delete(c.rooms, name)
	c.mu.Unlock()
	c.srv.hub.Leave(c.ctx, name, c)
}

// drop tears the client down once: rooms are left, feeds closed, and the realtime
// connection dropped so its disconnect hooks (presence offline) run.
func (c *Client) drop() {
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.srv.opts.WriteDeadline)
		defer cancel()

		c.mu.Lock()
		rooms := make([]string, 0, len(c.rooms))
		for r := range c.rooms {
			rooms = append(rooms, r)
		}
		subs := c.subs
		c.subs = map[string]func(){}
		c.mu.Unlock()

		for _, r := range rooms {
			c.srv.hub.Leave(ctx, r, c)
		}
		for _, stop := range subs {
			stop()
		}
		c.cancel()
		c.srv.hub.Unregister(c)
		c.conn.Drop(ctx)

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		log.Debug().Str("conn", c.id).Str("uid", c.uid).Msg("websocket client dropped")
	})
}
