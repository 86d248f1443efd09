package models

import "time"

type User struct {
	ID              string    `bson:"_id" json:"id"`
	DisplayName     string    `bson:"display_name" json:"display_name"`
	Email           string    `bson:"email" json:"email"`
	AvatarURL       string    `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Provider        string    `bson:"provider" json:"provider"` // password, federated
	ProviderSubject string    `bson:"provider_subject,omitempty" json:"-"`
	PasswordHash    string    `bson:"password_hash,omitempty" json:"-"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

const (
	ProviderPassword  = "password"
	ProviderFederated = "federated"
)

// AuthTokens is returned by every successful sign-in.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}
