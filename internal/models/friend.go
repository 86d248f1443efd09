package models

import "time"

// FriendRef is a one-directional record that Owner has added Friend.
type FriendRef struct {
	OwnerID     string    `bson:"owner_id" json:"owner_id"`
	FriendID    string    `bson:"friend_id" json:"friend_id"`
	DisplayName string    `bson:"display_name" json:"display_name"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}
