package models

import "time"

type ConversationKind string

const (
	KindDirect  ConversationKind = "direct"
	KindChannel ConversationKind = "channel"
)

type Conversation struct {
	Key          string           `bson:"_id" json:"key"`
	Kind         ConversationKind `bson:"kind" json:"kind"`
	Participants []string         `bson:"participants" json:"participants"`
	Name         string           `bson:"name,omitempty" json:"name,omitempty"`
	LastMessage  string           `bson:"last_message" json:"last_message"`
	LastSenderID string           `bson:"last_sender_id" json:"last_sender_id"`
	UpdatedAt    time.Time        `bson:"updated_at" json:"updated_at"`
}

type Message struct {
	ID              string    `bson:"_id" json:"id"`
	ConversationKey string    `bson:"conversation_key" json:"conversation_key"`
	SenderID        string    `bson:"sender_id" json:"sender_id"`
	Text            string    `bson:"text" json:"text"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}

// Target is whatever the message pane currently points at.
type Target struct {
	Kind ConversationKind `json:"kind,omitempty"`
	ID   string           `json:"id,omitempty"` // channel name or friend user id
}

func (t Target) IsZero() bool { return t.Kind == "" && t.ID == "" }
