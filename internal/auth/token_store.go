package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-chat/internal/cache"
)

const refreshTokenPrefix = "refresh_token:"

// TokenStore remembers the single live refresh token of each user.
type TokenStore interface {
	Save(ctx context.Context, userID, token string, ttl time.Duration) error
	// Consume removes the stored token and reports whether it equalled token.
	// The stored token is gone either way, so a replayed token revokes the live one.
	Consume(ctx context.Context, userID, token string) (bool, error)
	Delete(ctx context.Context, userID string) error
}

type RedisTokenStore struct {
	c *cache.Client
}

func NewRedisTokenStore(c *cache.Client) *RedisTokenStore {
	return &RedisTokenStore{c: c}
}

func (s *RedisTokenStore) Save(ctx context.Context, userID, token string, ttl time.Duration) error {
	return s.c.Set(ctx, refreshTokenPrefix+userID, token, ttl)
}

func (s *RedisTokenStore) Consume(ctx context.Context, userID, token string) (bool, error) {
	v, err := s.c.GetDel(ctx, refreshTokenPrefix+userID)
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == token, nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, userID string) error {
	return s.c.Delete(ctx, refreshTokenPrefix+userID)
}

type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
}

type memoryToken struct {
	value   string
	expires time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[string]memoryToken{}}
}

func (s *MemoryTokenStore) Save(_ context.Context, userID, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = memoryToken{value: token, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Consume(_ context.Context, userID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[userID]
	delete(s.tokens, userID)
	if !ok || time.Now().After(t.expires) {
		return false, nil
	}
	return t.value == token, nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
	return nil
}
