package models

import "time"

type PresenceState string

const (
	Online  PresenceState = "online"
	Offline PresenceState = "offline"
)

type Presence struct {
	UserID      string        `json:"user_id"`
	State       PresenceState `json:"state"`
	LastChanged time.Time     `json:"last_changed"`
}
