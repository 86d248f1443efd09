package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-chat/internal/cache"
	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// Store persists one presence marker per user. A missing or expired marker reads as offline.
type Store interface {
	// Set writes p. A positive ttl makes the marker expire.
	Set(ctx context.Context, p models.Presence, ttl time.Duration) error
	Get(ctx context.Context, uid string) (models.Presence, error)
	// Touch extends an online marker and reports whether one existed.
	Touch(ctx context.Context, uid string, ttl time.Duration) (bool, error)
}

func offline(uid string) models.Presence {
	return models.Presence{UserID: uid, State: models.Offline}
}

// RedisStore keeps markers as JSON under <prefix>:presence:<uid>.
type RedisStore struct {
	c *cache.Client
}

func NewRedisStore(c *cache.Client) *RedisStore {
	return &RedisStore{c: c}
}

func (s *RedisStore) key(uid string) string { return "presence:" + uid }

func (s *RedisStore) Set(ctx context.Context, p models.Presence, ttl time.Duration) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.c.Set(ctx, s.key(p.UserID), b, ttl)
}

func (s *RedisStore) Get(ctx context.Context, uid string) (models.Presence, error) {
	raw, err := s.c.Get(ctx, s.key(uid))
	if errors.Is(err, cache.ErrMiss) {
		return offline(uid), nil
	}
	if err != nil {
		return models.Presence{}, err
	}
	var p models.Presence
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return models.Presence{}, err
	}
	return p, nil
}

func (s *RedisStore) Touch(ctx context.Context, uid string, ttl time.Duration) (bool, error) {
	p, err := s.Get(ctx, uid)
	if err != nil {
		return false, err
	}
	if p.State != models.Online {
		return false, nil
	}
	return s.c.Raw().Expire(ctx, s.c.Key(s.key(uid)), ttl).Result()
}

// MemoryStore is the single-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	markers map[string]memoryMarker
	now     func() time.Time
}

type memoryMarker struct {
	p       models.Presence
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{markers: map[string]memoryMarker{}, now: time.Now}
}

func (s *MemoryStore) Set(_ context.Context, p models.Presence, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := memoryMarker{p: p}
	if ttl > 0 {
		m.expires = s.now().Add(ttl)
	}
	s.markers[p.UserID] = m
	return nil
}

func (s *MemoryStore) live(uid string) (memoryMarker, bool) {
	m, ok := s.markers[uid]
	if !ok {
		return m, false
	}
	if !m.expires.IsZero() && !s.now().Before(m.expires) {
		delete(s.markers, uid)
		return m, false
	}
	return m, true
}

func (s *MemoryStore) Get(_ context.Context, uid string) (models.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.live(uid)
	if !ok {
		return offline(uid), nil
	}
	return m.p, nil
}

func (s *MemoryStore) Touch(_ context.Context, uid string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.live(uid)
	if !ok || m.p.State != models.Online {
		return false, nil
	}
	if ttl > 0 {
		m.expires = s.now().Add(ttl)
	}
	s.markers[uid] = m
	return true, nil
}
