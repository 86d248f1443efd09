package session

import (
	"sync"

	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// Selection is the conversation target a session currently has open.
type Selection struct {
	mu       sync.RWMutex
	t        models.Target
	onChange func(models.Target)
}

func (s *Selection) Current() models.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t
}

func (s *Selection) Set(t models.Target) {
	s.mu.Lock()
	changed := s.t != t
	s.t = t
	fn := s.onChange
	s.mu.Unlock()
	if changed && fn != nil {
		fn(t)
	}
}

func (s *Selection) ClearIf(t models.Target) {
	s.mu.Lock()
	if s.t != t {
		s.mu.Unlock()
		return
	}
	s.t = models.Target{}
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(models.Target{})
	}
}

func (s *Selection) setOnChange(fn func(models.Target)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}
