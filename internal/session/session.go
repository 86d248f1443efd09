package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fathima-sithara/realtime-chat/internal/channels"
	"github.com/fathima-sithara/realtime-chat/internal/friends"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/realtime"
)

// State is what a session's sockets are told whenever channels or the selection change.
type State struct {
	Channels []string      `json:"channels"`
	Selected models.Target `json:"selected"`
}

// Session is the per-user context handed explicitly to every component that needs it.
type Session struct {
	UserID    string
	Channels  *channels.Registry
	Friends   *friends.Directory
	Selection *Selection

	mu       sync.Mutex
	conns    map[string]*realtime.Conn
	nextID   uint64
	watchers map[uint64]func(State)
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) State() State {
	return State{Channels: s.Channels.List(), Selected: s.Selection.Current()}
}

// Watch registers fn for state changes and returns a function that removes it.
func (s *Session) Watch(fn func(State)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Session) broadcast() {
	st := s.State()
	s.mu.Lock()
	fns := make([]func(State), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (s *Session) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Manager owns the live sessions of this process. Sessions with no connections
// are evicted by Run once they have been idle for the configured duration.
type Manager struct {
	friends  *friends.Service
	tracker  *presence.Tracker
	defaults []string
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	done     chan struct{}
	once     sync.Once
}

func NewManager(f *friends.Service, tracker *presence.Tracker, defaultChannels []string) *Manager {
	if len(defaultChannels) == 0 {
		defaultChannels = channels.DefaultChannels
	}
	return &Manager{
		friends:  f,
		tracker:  tracker,
		defaults: defaultChannels,
		now:      time.Now,
		sessions: map[string]*Session{},
		done:     make(chan struct{}),
	}
}

// Init returns the session of user, creating it on first use. New sessions start with
// the default channels and the first of them selected.
func (m *Manager) Init(_ context.Context, user *models.User) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[user.ID]; ok {
		s.touch(m.now())
		return s
	}

	sel := &Selection{}
	s := &Session{
		UserID:    user.ID,
		Selection: sel,
		Channels:  channels.NewRegistry(m.defaults, sel),
		Friends:   m.friends.Directory(user.ID, sel),
		conns:     map[string]*realtime.Conn{},
		watchers:  map[uint64]func(State){},
		lastSeen:  m.now(),
	}
	if names := s.Channels.List(); len(names) > 0 {
		sel.Set(models.Target{Kind: models.KindChannel, ID: names[0]})
	}
	s.Channels.OnChange(func([]string) { s.broadcast() })
	sel.setOnChange(func(models.Target) { s.broadcast() })

	m.sessions[user.ID] = s
	log.Debug().Str("uid", user.ID).Msg("session initialised")
	return s
}

func (m *Manager) Get(uid string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[uid]
	return s, ok
}

// Attach binds presence of the session's user to conn.
func (m *Manager) Attach(ctx context.Context, s *Session, conn *realtime.Conn) {
	s.mu.Lock()
	s.conns[conn.ID()] = conn
	s.mu.Unlock()

	// re-register a session evicted between Init and Attach
	m.mu.Lock()
	if _, ok := m.sessions[s.UserID]; !ok {
		m.sessions[s.UserID] = s
	}
	m.mu.Unlock()

	m.tracker.Start(ctx, conn, s.UserID)
	conn.OnDisconnect(func(context.Context) {
		s.mu.Lock()
		delete(s.conns, conn.ID())
		s.lastSeen = m.now()
		s.mu.Unlock()
	})
}

// Evict removes sessions that have no connections and were last used more than idle ago.
func (m *Manager) Evict(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for uid, s := range m.sessions {
		s.mu.Lock()
		stale := len(s.conns) == 0 && s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(m.sessions, uid)
			n++
		}
	}
	if n > 0 {
		log.Debug().Int("count", n).Msg("idle sessions evicted")
	}
	return n
}

// Run evicts idle sessions until Close. A non-positive idle disables eviction.
func (m *Manager) Run(idle time.Duration) {
	if idle <= 0 {
		<-m.done
		return
	}
	interval := idle / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.Evict(idle)
		}
	}
}

func (m *Manager) Close() {
	m.once.Do(func() { close(m.done) })
}

// Teardown ends the session on sign-out: every connection is dropped and presence goes offline.
func (m *Manager) Teardown(ctx context.Context, uid string) {
	m.mu.Lock()
	s, ok := m.sessions[uid]
	delete(m.sessions, uid)
	m.mu.Unlock()

	if ok {
		s.mu.Lock()
		conns := make([]*realtime.Conn, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, c := range conns {
			c.Drop(ctx)
		}
	}
	m.tracker.Stop(ctx, uid)
	log.Debug().Str("uid", uid).Msg("session torn down")
}

// Shutdown drops every connection of every session, e.g. when the server stops.
func (m *Manager) Shutdown(ctx context.Context) {
	m.Close()
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.mu.Lock()
		conns := make([]*realtime.Conn, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, c := range conns {
			c.Drop(ctx)
		}
	}
}
