package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/bus"
)

func fakeClient(id, uid string) *Client {
	return &Client{id: id, uid: uid, send: make(chan []byte, 16), subs: map[string]func(){}, rooms: map[string]struct{}{}}
}

func frames(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case b := <-c.send:
			var env Envelope
			if err := json.Unmarshal(b, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func types(envs []Envelope) []string {
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = e.Type
	}
	return out
}

func TestHubRoomsRelayToOtherMembers(t *testing.T) {
	b := bus.NewMemory()
	h := NewHub(b)
	ctx := context.Background()

	ann, bob, carl := fakeClient("c1", "ann"), fakeClient("c2", "bob"), fakeClient("c3", "carl")
	h.Join(ctx, "room", ann)
	h.Join(ctx, "room", bob)
	h.Join(ctx, "room", bob)
	h.Join(ctx, "room", carl)

	assert.Equal(t, []string{TypeUserJoined, TypeUserJoined}, types(frames(ann)))
	assert.Equal(t, []string{TypeUserJoined}, types(frames(bob)))
	assert.Empty(t, frames(carl))

	h.Relay(ctx, RoomEvent{Type: TypeOffer, Room: "room", From: "ann", FromConn: "c1", To: "bob"})
	assert.Empty(t, frames(ann))
	assert.Equal(t, []string{TypeOffer}, types(frames(bob)))
	assert.Empty(t, frames(carl))

	h.Relay(ctx, RoomEvent{Type: TypeICECandidate, Room: "room", From: "ann", FromConn: "c1"})
	assert.Len(t, frames(bob), 1)
	assert.Len(t, frames(carl), 1)

	h.Leave(ctx, "room", bob)
	assert.False(t, h.InRoom("room", bob))
	left := frames(ann)
	require.Len(t, left, 1)
	var ev RoomEvent
	require.NoError(t, json.Unmarshal(left[0].Data, &ev))
	assert.Equal(t, "bob", ev.From)
	assert.Equal(t, TypeUserLeft, ev.Type)

	h.Leave(ctx, "room", ann)
	h.Leave(ctx, "room", carl)
	h.mu.RLock()
	assert.Empty(t, h.rooms)
	h.mu.RUnlock()
}

func TestHubRegisterAndShutdown(t *testing.T) {
	h := NewHub(bus.NewMemory())
	go h.Run()

	c := fakeClient("c1", "ann")
	require.True(t, h.Register(c))
	assert.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 5*time.Millisecond)

	h.Unregister(c)
	assert.Eventually(t, func() bool { return h.Count() == 0 }, time.Second, 5*time.Millisecond)

	h.Shutdown()
	assert.False(t, h.Register(c))
}

func TestEncodeAndErrorData(t *testing.T) {
	b, err := encode(TypePong, "p1", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","id":"p1"}`, string(b))

	b, err = encode(TypeSnapshot, "s", Snapshot{Feed: FeedFriends, Items: []string{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"snapshot","id":"s","data":{"feed":"friends","items":[]}}`, string(b))

	assert.Equal(t, ErrorData{Code: "duplicate", Message: "x: already exists"},
		errorData(fmt.Errorf("x: %w", apperrors.ErrDuplicate)))
	assert.Equal(t, ErrorData{Code: "internal", Message: "internal error"}, errorData(errors.New("db exploded")))
}

func TestClosedClientIgnoresEmit(t *testing.T) {
	c := fakeClient("c1", "ann")
	c.closed = true
	c.emit(TypePong, "", nil)
	assert.Empty(t, frames(c))
}
