package ws

import (
	"encoding/json"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
)

// Envelope is the wire format of every websocket frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// client -> server
const (
	TypePing         = "ping"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeMessageSend  = "message.send"
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// server -> client
const (
	TypePong        = "pong"
	TypeSnapshot    = "snapshot"
	TypeMessageSent = "message.sent"
	TypeUserJoined  = "user-joined"
	TypeUserLeft    = "user-left"
	TypeChannels    = "channels"
	TypeError       = "error"
)

// Feeds a client can subscribe to.
const (
	FeedFriends       = "friends"
	FeedConversation  = "conversation"
	FeedConversations = "conversations"
	FeedPresence      = "presence"
	FeedMe            = "me"
	FeedChannels      = "channels"
)

type SubscribeData struct {
	Feed  string `json:"feed"`
	Key   string `json:"key,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type SendData struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type Snapshot struct {
	Feed  string `json:"feed"`
	Key   string `json:"key,omitempty"`
	Items any    `json:"items"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomData struct {
	Room string `json:"room"`
}

// SignalData carries an offer, answer or ICE candidate. To addresses one user in the
// room; empty means every other member.
type SignalData struct {
	Room    string          `json:"room"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomEvent is what members of a signaling room receive, and what travels on the bus.
type RoomEvent struct {
	Type     string          `json:"type"`
	Room     string          `json:"room"`
	From     string          `json:"from"`
	FromConn string          `json:"-"`
	To       string          `json:"to,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// roomWire adds the sender connection so an instance can skip echoing to it.
type roomWire struct {
	RoomEvent
	Conn string `json:"conn"`
}

func encode(typ, id string, v any) ([]byte, error) {
	var data json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Type: typ, ID: id, Data: data})
}

func errorData(err error) ErrorData {
	code := apperrors.Code(err)
	msg := err.Error()
	if code == "internal" {
		msg = "internal error"
	}
	return ErrorData{Code: code, Message: msg}
}
