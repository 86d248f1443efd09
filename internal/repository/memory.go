package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// NewMemoryStore keeps everything in process memory. Used for development and tests.
func NewMemoryStore() *Store {
	return &Store{
		Users:         &memoryUsers{byID: map[string]*models.User{}},
		Friends:       &memoryFriends{byOwner: map[string]map[string]models.FriendRef{}},
		Conversations: &memoryConversations{convs: map[string]*models.Conversation{}, msgs: map[string][]models.Message{}},
	}
}

type memoryUsers struct {
	mu   sync.RWMutex
	byID map[string]*models.User
}

func (r *memoryUsers) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u.Email = normalizeEmail(u.Email)
	if _, ok := r.byID[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, apperrors.ErrDuplicate)
	}
	for _, existing := range r.byID {
		if u.Email != "" && existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, apperrors.ErrDuplicate)
		}
	}
	ts := now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = ts
	}
	u.UpdatedAt = ts
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *memoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *memoryUsers) first(match func(*models.User) bool) *models.User {
	var best *models.User
	for _, u := range r.byID {
		if !match(u) {
			continue
		}
		if best == nil || u.CreatedAt.Before(best.CreatedAt) ||
			(u.CreatedAt.Equal(best.CreatedAt) && u.ID < best.ID) {
			best = u
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u := r.first(func(u *models.User) bool { return u.Email == email }); u != nil {
		return u, nil
	}
	return nil, fmt.Errorf("email %s: %w", email, apperrors.ErrNotFound)
}

func (r *memoryUsers) GetByProviderSubject(_ context.Context, provider, subject string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u := r.first(func(u *models.User) bool { return u.Provider == provider && u.ProviderSubject == subject }); u != nil {
		return u, nil
	}
	return nil, fmt.Errorf("subject %s: %w", subject, apperrors.ErrNotFound)
}

func (r *memoryUsers) FindByDisplayName(_ context.Context, name string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u := r.first(func(u *models.User) bool { return u.DisplayName == name }); u != nil {
		return u, nil
	}
	return nil, fmt.Errorf("display name %q: %w", name, apperrors.ErrNotFound)
}

func (r *memoryUsers) update(id string, fn func(*models.User)) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	fn(u)
	u.UpdatedAt = now()
	cp := *u
	return &cp, nil
}

func (r *memoryUsers) UpdateDisplayName(_ context.Context, id, name string) (*models.User, error) {
	return r.update(id, func(u *models.User) { u.DisplayName = name })
}

func (r *memoryUsers) UpdateAvatar(_ context.Context, id, url string) (*models.User, error) {
	return r.update(id, func(u *models.User) { u.AvatarURL = url })
}

type memoryFriends struct {
	mu      sync.RWMutex
	byOwner map[string]map[string]models.FriendRef
}

func (r *memoryFriends) Add(_ context.Context, ref *models.FriendRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs, ok := r.byOwner[ref.OwnerID]
	if !ok {
		refs = map[string]models.FriendRef{}
		r.byOwner[ref.OwnerID] = refs
	}
	if _, ok := refs[ref.FriendID]; ok {
		return fmt.Errorf("friend %s: %w", ref.FriendID, apperrors.ErrDuplicate)
	}
	ref.CreatedAt = now()
	refs[ref.FriendID] = *ref
	return nil
}

func (r *memoryFriends) Remove(_ context.Context, ownerID, friendID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs := r.byOwner[ownerID]
	if _, ok := refs[friendID]; !ok {
		return fmt.Errorf("friend %s: %w", friendID, apperrors.ErrNotFound)
	}
	delete(refs, friendID)
	return nil
}

func (r *memoryFriends) Get(_ context.Context, ownerID, friendID string) (*models.FriendRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.byOwner[ownerID][friendID]
	if !ok {
		return nil, fmt.Errorf("friend %s: %w", friendID, apperrors.ErrNotFound)
	}
	return &ref, nil
}

func (r *memoryFriends) List(_ context.Context, ownerID string) ([]models.FriendRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.FriendRef, 0, len(r.byOwner[ownerID]))
	for _, ref := range r.byOwner[ownerID] {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FriendID < out[j].FriendID })
	return out, nil
}

type memoryConversations struct {
	mu    sync.RWMutex
	convs map[string]*models.Conversation
	msgs  map[string][]models.Message
}

func (r *memoryConversations) Upsert(_ context.Context, c *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.UpdatedAt = now()
	existing, ok := r.convs[c.Key]
	if ok {
		c.Participants = mergeParticipants(existing.Participants, c.Participants)
		if c.Name == "" {
			c.Name = existing.Name
		}
	} else {
		c.Participants = mergeParticipants(nil, c.Participants)
	}
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	r.convs[c.Key] = &cp
	return nil
}

func (r *memoryConversations) Get(_ context.Context, key string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.convs[key]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", key, apperrors.ErrNotFound)
	}
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	return &cp, nil
}

func (r *memoryConversations) ListForUser(_ context.Context, userID string) ([]models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Conversation{}
	for _, c := range r.convs {
		for _, p := range c.Participants {
			if p == userID {
				cp := *c
				cp.Participants = append([]string(nil), c.Participants...)
				out = append(out, cp)
				break
			}
		}
	}
	sortConversations(out)
	return out, nil
}

func (r *memoryConversations) AppendMessage(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = newMessageID()
	m.CreatedAt = now()
	r.msgs[m.ConversationKey] = append(r.msgs[m.ConversationKey], *m)
	return nil
}

func (r *memoryConversations) Recent(_ context.Context, key string, limit int) ([]models.Message, error) {
	r.mu.RLock()
	all := append([]models.Message(nil), r.msgs[key]...)
	r.mu.RUnlock()

	sortMessages(all)
	limit = clampLimit(limit)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	if all == nil {
		all = []models.Message{}
	}
	return all, nil
}

func (r *memoryConversations) Before(_ context.Context, key string, before Cursor, limit int) ([]models.Message, error) {
	r.mu.RLock()
	var older []models.Message
	for _, m := range r.msgs[key] {
		if before.Admits(m) {
			older = append(older, m)
		}
	}
	r.mu.RUnlock()

	sortMessages(older)
	limit = clampLimit(limit)
	if len(older) > limit {
		older = older[len(older)-limit:]
	}
	if older == nil {
		older = []models.Message{}
	}
	return older, nil
}
