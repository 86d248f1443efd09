package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// Users stores user profiles. Emails are compared lower-cased.
type Users interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByProviderSubject(ctx context.Context, provider, subject string) (*models.User, error)
	// FindByDisplayName returns the earliest created user with exactly this display name.
	FindByDisplayName(ctx context.Context, name string) (*models.User, error)
	UpdateDisplayName(ctx context.Context, id, name string) (*models.User, error)
	UpdateAvatar(ctx context.Context, id, url string) (*models.User, error)
}

// Friends stores the one-directional friend references of each owner.
type Friends interface {
	Add(ctx context.Context, ref *models.FriendRef) error
	Remove(ctx context.Context, ownerID, friendID string) error
	Get(ctx context.Context, ownerID, friendID string) (*models.FriendRef, error)
	List(ctx context.Context, ownerID string) ([]models.FriendRef, error)
}

// Conversations stores conversation metadata and the append-only message log.
type Conversations interface {
	// Upsert merges participants and overwrites the preview fields. UpdatedAt is assigned by the store.
	Upsert(ctx context.Context, c *models.Conversation) error
	Get(ctx context.Context, key string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	// AppendMessage assigns ID and CreatedAt before writing.
	AppendMessage(ctx context.Context, m *models.Message) error
	// Recent returns the newest limit messages in ascending order.
	Recent(ctx context.Context, key string, limit int) ([]models.Message, error)
	// Before returns up to limit messages ordered before the cursor, in ascending order.
	// A zero cursor starts from the newest message.
	Before(ctx context.Context, key string, before Cursor, limit int) ([]models.Message, error)
}

// Cursor is a position in a conversation's (created_at, id) order.
type Cursor struct {
	At time.Time
	ID string
}

// CursorOf returns the position of m. Paging Before it yields the messages older than m.
func CursorOf(m models.Message) Cursor {
	return Cursor{At: m.CreatedAt, ID: m.ID}
}

func (c Cursor) IsZero() bool { return c.At.IsZero() }

// Admits reports whether m sorts strictly before the cursor. An empty ID
// admits only messages from earlier milliseconds.
func (c Cursor) Admits(m models.Message) bool {
	if c.IsZero() {
		return true
	}
	if m.CreatedAt.Before(c.At) {
		return true
	}
	return c.ID != "" && m.CreatedAt.Equal(c.At) && m.ID < c.ID
}

// Store bundles the repositories of one backing driver.
type Store struct {
	Users         Users
	Friends       Friends
	Conversations Conversations

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

const DefaultMessageLimit = 50

// Millisecond precision keeps every driver ordering identically.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	return limit
}

func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func sortConversations(cs []models.Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].UpdatedAt.Equal(cs[j].UpdatedAt) {
			return cs[i].UpdatedAt.After(cs[j].UpdatedAt)
		}
		return cs[i].Key < cs[j].Key
	})
}

func mergeParticipants(existing, add []string) []string {
	out := append([]string(nil), existing...)
	for _, p := range add {
		found := false
		for _, e := range out {
			if e == p {
				found = true
				break
			}
		}
		if !found && p != "" {
			out = append(out, p)
		}
	}
	return out
}
